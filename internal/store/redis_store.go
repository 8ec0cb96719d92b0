package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/afikyefet/sudoku-live/internal/domain"
	"github.com/redis/go-redis/v9"
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Address    string `mapstructure:"address"`
	Password   string `mapstructure:"password"`
	DB         int    `mapstructure:"db"`
	InstanceID string `mapstructure:"-"`
}

// redisStore implements PresenceStore using Redis.
type redisStore struct {
	client     redis.UniversalClient
	instanceID string
	ownsClient bool
}

// NewRedisStore creates a new Redis-backed presence store.
func NewRedisStore(cfg RedisConfig) (PresenceStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &redisStore{client: client, instanceID: cfg.InstanceID, ownsClient: true}, nil
}

// NewRedisStoreFromClient wraps an existing client. Close leaves the client
// open.
func NewRedisStoreFromClient(client redis.UniversalClient, instanceID string) PresenceStore {
	return &redisStore{client: client, instanceID: instanceID}
}

// Redis key patterns:
// puzzle:room:{puzzle_id}:counts       HASH<instance_id, count> - members per instance
// puzzle:instance:{instance_id}:rooms  SET<puzzle_id>           - rooms with a count from the instance
// puzzle:live_rooms                    SET<puzzle_id>           - rooms currently live
// puzzle:room:{puzzle_id}:live_status  HASH                     - live status for a room
//   - broadcaster_id: connection id
//   - broadcaster: display name
//   - instance_id: owning instance
//   - started_at: unix timestamp

func roomCountsKey(puzzleID string) string {
	return fmt.Sprintf("puzzle:room:%s:counts", puzzleID)
}

func instanceRoomsKey(instanceID string) string {
	return fmt.Sprintf("puzzle:instance:%s:rooms", instanceID)
}

const liveRoomsKey = "puzzle:live_rooms"

func roomLiveStatusKey(puzzleID string) string {
	return fmt.Sprintf("puzzle:room:%s:live_status", puzzleID)
}

func (s *redisStore) SetRoomCount(ctx context.Context, puzzleID string, count int) error {
	pipe := s.client.TxPipeline()
	if count > 0 {
		pipe.HSet(ctx, roomCountsKey(puzzleID), s.instanceID, count)
		pipe.SAdd(ctx, instanceRoomsKey(s.instanceID), puzzleID)
	} else {
		pipe.HDel(ctx, roomCountsKey(puzzleID), s.instanceID)
		pipe.SRem(ctx, instanceRoomsKey(s.instanceID), puzzleID)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *redisStore) GetClusterCount(ctx context.Context, puzzleID string) (int, error) {
	vals, err := s.client.HVals(ctx, roomCountsKey(puzzleID)).Result()
	if err != nil {
		return 0, err
	}
	total := 0
	for _, v := range vals {
		n, err := strconv.Atoi(v)
		if err != nil {
			continue
		}
		total += n
	}
	return total, nil
}

func (s *redisStore) SetRoomLive(ctx context.Context, status domain.LiveStatus) error {
	startedAt := status.StartedAt
	if startedAt == 0 {
		startedAt = time.Now().Unix()
	}

	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, liveRoomsKey, status.PuzzleID)
	pipe.HSet(ctx, roomLiveStatusKey(status.PuzzleID), map[string]interface{}{
		"broadcaster_id": status.BroadcasterID,
		"broadcaster":    status.Broadcaster,
		"instance_id":    s.instanceID,
		"started_at":     strconv.FormatInt(startedAt, 10),
	})
	_, err := pipe.Exec(ctx)
	return err
}

func (s *redisStore) SetRoomOffline(ctx context.Context, puzzleID string) error {
	pipe := s.client.TxPipeline()
	pipe.SRem(ctx, liveRoomsKey, puzzleID)
	pipe.Del(ctx, roomLiveStatusKey(puzzleID))
	_, err := pipe.Exec(ctx)
	return err
}

func (s *redisStore) GetRoomLiveStatus(ctx context.Context, puzzleID string) (*domain.LiveStatus, error) {
	result, err := s.client.HGetAll(ctx, roomLiveStatusKey(puzzleID)).Result()
	if err != nil {
		return nil, err
	}

	status := &domain.LiveStatus{PuzzleID: puzzleID}
	if len(result) == 0 {
		return status, nil
	}

	status.IsLive = true
	status.BroadcasterID = result["broadcaster_id"]
	status.Broadcaster = result["broadcaster"]
	status.Remote = result["instance_id"] != s.instanceID
	if ts, err := strconv.ParseInt(result["started_at"], 10, 64); err == nil {
		status.StartedAt = ts
	}
	return status, nil
}

func (s *redisStore) GetAllLiveRooms(ctx context.Context) ([]string, error) {
	rooms, err := s.client.SMembers(ctx, liveRoomsKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return rooms, err
}

func (s *redisStore) ClearInstance(ctx context.Context) error {
	key := instanceRoomsKey(s.instanceID)
	rooms, err := s.client.SMembers(ctx, key).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}

	pipe := s.client.TxPipeline()
	for _, puzzleID := range rooms {
		pipe.HDel(ctx, roomCountsKey(puzzleID), s.instanceID)
	}
	pipe.Del(ctx, key)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *redisStore) Close() error {
	if !s.ownsClient {
		return nil
	}
	return s.client.Close()
}
