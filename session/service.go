package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// =============================================================================
// 👤 活跃会话服务
// =============================================================================

// ErrNoActiveSession 用户当前没有活跃会话。
var ErrNoActiveSession = fmt.Errorf("no active session")

// Config 会话服务配置。
type Config struct {
	// Redis 地址
	Addr string `yaml:"addr" json:"addr"`

	// 密码
	Password string `yaml:"password" json:"password"`

	// 数据库编号
	DB int `yaml:"db" json:"db"`

	// 会话过期时间
	SessionTTL time.Duration `yaml:"session_ttl" json:"session_ttl"`

	// 最大重试次数
	MaxRetries int `yaml:"max_retries" json:"max_retries"`

	// 连接池大小
	PoolSize int `yaml:"pool_size" json:"pool_size"`
}

// DefaultConfig 返回默认会话配置。
func DefaultConfig() Config {
	return Config{
		Addr:       "localhost:6379",
		DB:         0,
		SessionTTL: 24 * time.Hour,
		MaxRetries: 3,
		PoolSize:   10,
	}
}

// Service 基于 Redis 的活跃会话索引。
// propose_mission 通过 LinkMission 把新任务挂到调用方的活跃会话；
// 会话本体（聊天历史等）由外层系统维护，这里只存索引。
type Service struct {
	redis  *redis.Client
	config Config
	logger *zap.Logger
}

// NewService 创建会话服务并验证连接。
func NewService(config Config, logger *zap.Logger) (*Service, error) {
	client := redis.NewClient(&redis.Options{
		Addr:       config.Addr,
		Password:   config.Password,
		DB:         config.DB,
		MaxRetries: config.MaxRetries,
		PoolSize:   config.PoolSize,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("session service initialized", zap.String("addr", config.Addr))

	return &Service{
		redis:  client,
		config: config,
		logger: logger.With(zap.String("component", "session")),
	}, nil
}

// NewServiceWithClient 用现成客户端创建会话服务（测试用）。
func NewServiceWithClient(client *redis.Client, config Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		redis:  client,
		config: config,
		logger: logger.With(zap.String("component", "session")),
	}
}

func activeKey(userID string) string { return "session:active:" + userID }

func missionsKey(sessionID string) string { return "session:" + sessionID + ":missions" }

// Begin 开启（或重置）用户的活跃会话，返回会话 ID。
func (s *Service) Begin(ctx context.Context, userID string) (string, error) {
	sessionID := uuid.NewString()
	if err := s.redis.Set(ctx, activeKey(userID), sessionID, s.config.SessionTTL).Err(); err != nil {
		return "", fmt.Errorf("failed to begin session: %w", err)
	}
	s.logger.Debug("session started",
		zap.String("user_id", userID),
		zap.String("session_id", sessionID),
	)
	return sessionID, nil
}

// Active 返回用户的活跃会话 ID。
func (s *Service) Active(ctx context.Context, userID string) (string, error) {
	val, err := s.redis.Get(ctx, activeKey(userID)).Result()
	if err == redis.Nil {
		return "", ErrNoActiveSession
	}
	if err != nil {
		return "", fmt.Errorf("failed to read active session: %w", err)
	}
	return val, nil
}

// LinkMission 把任务追加到用户活跃会话的任务列表。
// 没有活跃会话时先隐式开启一个。
func (s *Service) LinkMission(ctx context.Context, userID, missionID string) error {
	sessionID, err := s.Active(ctx, userID)
	if err == ErrNoActiveSession {
		sessionID, err = s.Begin(ctx, userID)
	}
	if err != nil {
		return err
	}

	key := missionsKey(sessionID)
	if err := s.redis.RPush(ctx, key, missionID).Err(); err != nil {
		return fmt.Errorf("failed to link mission to session: %w", err)
	}
	if err := s.redis.Expire(ctx, key, s.config.SessionTTL).Err(); err != nil {
		return fmt.Errorf("failed to refresh session ttl: %w", err)
	}

	s.logger.Debug("mission linked to session",
		zap.String("user_id", userID),
		zap.String("session_id", sessionID),
		zap.String("mission_id", missionID),
	)
	return nil
}

// Missions 返回会话关联的任务 ID 列表（按挂接顺序）。
func (s *Service) Missions(ctx context.Context, sessionID string) ([]string, error) {
	ids, err := s.redis.LRange(ctx, missionsKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list session missions: %w", err)
	}
	return ids, nil
}

// Close 关闭底层 Redis 连接。
func (s *Service) Close() error {
	return s.redis.Close()
}
