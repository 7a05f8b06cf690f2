package presence

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/PaulBabatuyi/skillswap-realtime/internal/logging"
)

// RedisConfig configures the shared registry.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	// Prefix namespaces every key. Default "skillswap:presence".
	Prefix string
	// InstanceID names this server. Each instance owns one hash of
	// user -> connection count.
	InstanceID string
	// KeyTTL expires the hash of an instance that stopped heartbeating.
	KeyTTL time.Duration
	// HeartbeatInterval refreshes the TTL. It must be well below KeyTTL.
	HeartbeatInterval time.Duration
}

// Redis shares presence across server instances.
//
// Keys:
//
//	{prefix}:instances            SET<instance_id>
//	{prefix}:instance:{id}        HASH user_id -> open connections, TTL KeyTTL
type Redis struct {
	client *redis.Client
	cfg    RedisConfig
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRedis connects, pings and starts the heartbeat.
func NewRedis(cfg RedisConfig) (*Redis, error) {
	if cfg.InstanceID == "" {
		return nil, errors.New("presence: instance id is required")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "skillswap:presence"
	}
	if cfg.KeyTTL <= 0 {
		cfg.KeyTTL = 30 * time.Second
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = cfg.KeyTTL / 3
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	r := &Redis{client: client, cfg: cfg, done: make(chan struct{})}
	hbCtx, hbCancel := context.WithCancel(context.Background())
	r.cancel = hbCancel
	go r.heartbeatLoop(hbCtx)
	return r, nil
}

func (r *Redis) instancesKey() string { return r.cfg.Prefix + ":instances" }

func (r *Redis) instanceKey(id string) string {
	return fmt.Sprintf("%s:instance:%s", r.cfg.Prefix, id)
}

func (r *Redis) Connect(ctx context.Context, userID string) error {
	key := r.instanceKey(r.cfg.InstanceID)
	pipe := r.client.TxPipeline()
	pipe.HIncrBy(ctx, key, userID, 1)
	pipe.Expire(ctx, key, r.cfg.KeyTTL)
	pipe.SAdd(ctx, r.instancesKey(), r.cfg.InstanceID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("presence: connect %s: %w", userID, err)
	}
	return nil
}

func (r *Redis) Disconnect(ctx context.Context, userID string) error {
	key := r.instanceKey(r.cfg.InstanceID)
	n, err := r.client.HIncrBy(ctx, key, userID, -1).Result()
	if err != nil {
		return fmt.Errorf("presence: disconnect %s: %w", userID, err)
	}
	if n <= 0 {
		if err := r.client.HDel(ctx, key, userID).Err(); err != nil {
			return fmt.Errorf("presence: disconnect %s: %w", userID, err)
		}
	}
	return nil
}

// Online merges the hashes of every live instance. Instances whose hash
// expired are pruned from the set.
func (r *Redis) Online(ctx context.Context) ([]string, error) {
	instances, err := r.client.SMembers(ctx, r.instancesKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("presence: list instances: %w", err)
	}

	seen := make(map[string]struct{})
	for _, inst := range instances {
		counts, err := r.client.HGetAll(ctx, r.instanceKey(inst)).Result()
		if err != nil {
			return nil, fmt.Errorf("presence: read instance %s: %w", inst, err)
		}
		if len(counts) == 0 && inst != r.cfg.InstanceID {
			r.client.SRem(ctx, r.instancesKey(), inst)
			continue
		}
		for user, n := range counts {
			if n != "0" {
				seen[user] = struct{}{}
			}
		}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *Redis) heartbeatLoop(ctx context.Context) {
	defer close(r.done)
	ticker := time.NewTicker(r.cfg.HeartbeatInterval)
	defer ticker.Stop()
	log := logging.Component("presence")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.client.Expire(ctx, r.instanceKey(r.cfg.InstanceID), r.cfg.KeyTTL).Err(); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Str("instance", r.cfg.InstanceID).Msg("failed to refresh presence key")
			}
		}
	}
}

// Close stops the heartbeat, removes this instance's connections and
// closes the client.
func (r *Redis) Close() error {
	r.cancel()
	<-r.done

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.instanceKey(r.cfg.InstanceID))
	pipe.SRem(ctx, r.instancesKey(), r.cfg.InstanceID)
	_, err := pipe.Exec(ctx)
	if cerr := r.client.Close(); err == nil {
		err = cerr
	}
	return err
}
