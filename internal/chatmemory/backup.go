package chatmemory

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"

	"orakle/internal/config"
	"orakle/internal/textstore"
)

// snapshot is the durable export unit: one context's message log plus the
// counters a restore needs to decide whether the vector index is stale.
// It is not a full restore format on its own; the vector embeddings
// themselves are regenerated from Text on restore rather than shipped.
type snapshot struct {
	ContextID    string              `json:"context_id"`
	ExportedAt   time.Time           `json:"exported_at"`
	Messages     []textstore.Message `json:"messages"`
	MemoryCount  int                 `json:"memory_count"`
	VectorCount  int                 `json:"vector_count"`
}

// BackupStore pushes periodic, best-effort durability snapshots of a
// context's relational log to S3. Grounded on manifold's
// internal/objectstore.S3Store (aws-sdk-go-v2 client construction,
// path-style/endpoint options for S3-compatible backends), narrowed down
// to the one operation this package needs: PutObject.
type BackupStore struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewBackupStore builds an S3 client from cfg. Returns (nil, nil) if no
// bucket is configured, so callers can treat backup as optional without
// a separate enabled flag threaded through every call site.
func NewBackupStore(ctx context.Context, cfg config.BackupConfig) (*BackupStore, error) {
	if !cfg.Enabled() {
		return nil, nil
	}

	awsOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.S3Region),
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsOpts...)
	if err != nil {
		return nil, fmt.Errorf("chatmemory: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg)
	return &BackupStore{
		client: client,
		bucket: cfg.S3Bucket,
		prefix: strings.TrimSuffix(cfg.S3Prefix, "/"),
	}, nil
}

// WithCredentials overrides the default credential chain with static
// keys, for S3-compatible backends (MinIO, etc.) that don't have an
// IAM role to assume. Mirrors objectstore.S3Store's static-credentials
// path for the same reason.
func WithCredentials(ctx context.Context, cfg config.BackupConfig, accessKey, secretKey string) (*BackupStore, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	awsOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
		awsconfig.WithHTTPClient(&http.Client{Transport: &http.Transport{TLSClientConfig: &tls.Config{}}}),
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsOpts...)
	if err != nil {
		return nil, fmt.Errorf("chatmemory: load aws config: %w", err)
	}
	return &BackupStore{client: s3.NewFromConfig(awsCfg), bucket: cfg.S3Bucket, prefix: strings.TrimSuffix(cfg.S3Prefix, "/")}, nil
}

func (b *BackupStore) key(contextID string, at time.Time) string {
	name := fmt.Sprintf("%s/%s.json", contextID, at.UTC().Format("20060102T150405Z"))
	if b.prefix == "" {
		return name
	}
	return b.prefix + "/" + name
}

// Export uploads one snapshot of contextID's message log. Callers are
// expected to treat a non-nil error as loggable-and-ignorable: a failed
// backup must never fail or slow down the turn that triggered it.
func (b *BackupStore) Export(ctx context.Context, contextID string, messages []textstore.Message, memoryCount, vectorCount int) error {
	now := time.Now().UTC()
	snap := snapshot{
		ContextID:   contextID,
		ExportedAt:  now,
		Messages:    messages,
		MemoryCount: memoryCount,
		VectorCount: vectorCount,
	}
	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("chatmemory: marshal snapshot: %w", err)
	}

	_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(b.key(contextID, now)),
		Body:        strings.NewReader(string(body)),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("chatmemory: s3 put: %w", err)
	}
	return nil
}

// Scheduler periodically exports every active context's log to S3. It
// runs detached from the request path: Conversation Manager turns never
// block on it, and a failed cycle just logs and waits for the next tick.
type Scheduler struct {
	backup   *BackupStore
	log      *Log
	interval time.Duration
	// activeContexts returns the context ids worth backing up this
	// cycle. Supplied by the caller (C9/C10 wiring) rather than owned
	// here, since "which contexts are active" is session-manager state
	// this package has no visibility into.
	activeContexts func(ctx context.Context) ([]string, error)
	countsFor      func(ctx context.Context, contextID string) (memoryCount, vectorCount int, err error)
}

func NewScheduler(backup *BackupStore, log *Log, interval time.Duration,
	activeContexts func(ctx context.Context) ([]string, error),
	countsFor func(ctx context.Context, contextID string) (int, int, error),
) *Scheduler {
	return &Scheduler{backup: backup, log: log, interval: interval, activeContexts: activeContexts, countsFor: countsFor}
}

// Run blocks until ctx is cancelled, exporting on every tick. A nil
// backup (no bucket configured) makes this a no-op loop that just waits
// for cancellation, so callers can always start it unconditionally.
func (sch *Scheduler) Run(ctx context.Context) {
	if sch.backup == nil {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(sch.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sch.runOnce(ctx)
		}
	}
}

func (sch *Scheduler) runOnce(ctx context.Context) {
	ids, err := sch.activeContexts(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("chatmemory: backup scheduler could not list active contexts")
		return
	}
	for _, contextID := range ids {
		if err := sch.backupOne(ctx, contextID); err != nil {
			log.Warn().Err(err).Str("context_id", contextID).Msg("chatmemory: backup failed, will retry next cycle")
		}
	}
}

func (sch *Scheduler) backupOne(ctx context.Context, contextID string) error {
	messages, err := sch.log.Recent(ctx, contextID, 0)
	if err != nil {
		return fmt.Errorf("load messages: %w", err)
	}
	memoryCount, vectorCount, err := sch.countsFor(ctx, contextID)
	if err != nil {
		return fmt.Errorf("load counts: %w", err)
	}
	return sch.backup.Export(ctx, contextID, messages, memoryCount, vectorCount)
}
