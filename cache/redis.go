// Package cache keeps per-image results in Redis so unchanged label files are
// not labeled and encoded again.
package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/model-collapse/panoptic-prep/labels"
	"github.com/model-collapse/panoptic-prep/panoptic"
	"github.com/model-collapse/panoptic-prep/util"
)

type Config struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// Entry is the cached outcome of one unit.
type Entry struct {
	Width    int                `cbor:"1,keyasint"`
	Height   int                `cbor:"2,keyasint"`
	Segments []panoptic.Segment `cbor:"3,keyasint"`
	Dropped  []uint32           `cbor:"4,keyasint,omitempty"`
	Unknown  int                `cbor:"5,keyasint,omitempty"`
}

// Key identifies a result by input content, taxonomy and output mode.
// Instances results carry simplified polygons, so their key also holds the
// simplification tolerance.
func Key(md5 string, variant labels.Variant, mode panoptic.Mode, tolerance float64) string {
	m := string(mode)
	if mode == panoptic.ModeInstances {
		m += "@" + strconv.FormatFloat(tolerance, 'g', -1, 64)
	}
	return "panoptic:" + string(variant) + ":" + m + ":" + md5
}

func Marshal(e *Entry) ([]byte, error) {
	return cbor.Marshal(e)
}

func Unmarshal(data []byte) (*Entry, error) {
	var e Entry
	if err := cbor.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(cfg *Config) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &Redis{
		client: client,
		ttl:    cfg.TTL,
	}
}

func (s *Redis) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Get returns nil, nil on a miss.
func (s *Redis) Get(ctx context.Context, key string) (*Entry, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	e, err := Unmarshal(data)
	if err != nil {
		util.Logger.Error("failed to decode cached result", zap.String("key", key), zap.Error(err))
		return nil, err
	}
	return e, nil
}

func (s *Redis) Set(ctx context.Context, key string, e *Entry) error {
	data, err := Marshal(e)
	if err != nil {
		return err
	}

	return s.client.Set(ctx, key, data, s.ttl).Err()
}

func (s *Redis) Close() error {
	return s.client.Close()
}
