package usecase

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/foodbase/etl/internal/domain"
	"github.com/foodbase/etl/internal/infrastructure/csvtable"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// UploadConfig holds configuration for the upload service
type UploadConfig struct {
	BatchSize          int
	Dimensions         int
	EmbedRetries       int // attempts per batch against the embedding API
	UpsertRetries      int // attempts per batch against the vector store
	EnableDebugLogging bool
}

// UploadReport summarizes an upload run
type UploadReport struct {
	Rows           int
	Documents      int
	SkippedRows    int // rows without a record id or name
	Batches        int
	SkippedBatches int
	Uploaded       int
	Duration       time.Duration
}

// UploadService embeds the rows of a food table and stores them in a vector store
type UploadService struct {
	reader   domain.TableReader
	embedder domain.Embedder
	store    domain.VectorStore
	config   UploadConfig
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewUploadService creates a new upload service with dependencies
func NewUploadService(reader domain.TableReader, embedder domain.Embedder, store domain.VectorStore, config UploadConfig) *UploadService {
	if config.BatchSize <= 0 {
		config.BatchSize = 90
	}
	if config.EmbedRetries <= 0 {
		config.EmbedRetries = 5
	}
	if config.UpsertRetries <= 0 {
		config.UpsertRetries = 15
	}
	return &UploadService{
		reader:   reader,
		embedder: embedder,
		store:    store,
		config:   config,
		sleep:    sleepContext,
	}
}

// Upload reads the food table at path and uploads it
func (s *UploadService) Upload(ctx context.Context, path string) (*UploadReport, error) {
	table, err := s.reader.ReadTable(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read food table: %w", err)
	}
	return s.UploadTable(ctx, table)
}

// UploadTable uploads every complete row of table in batches. A batch whose
// retries run out is logged and skipped; the run continues with the next one.
func (s *UploadService) UploadTable(ctx context.Context, table *domain.FoodTable) (*UploadReport, error) {
	ctx, span := otel.Tracer("foodetl/upload").Start(ctx, "upload")
	defer span.End()

	start := time.Now()
	docs, skipped := BuildDocuments(table)
	report := &UploadReport{Rows: len(table.Rows), Documents: len(docs), SkippedRows: skipped}
	span.SetAttributes(attribute.Int("documents", len(docs)))

	if err := s.store.EnsureCollection(ctx, s.config.Dimensions); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	for offset := 0; offset < len(docs); offset += s.config.BatchSize {
		batch := docs[offset:min(offset+s.config.BatchSize, len(docs))]
		report.Batches++

		ok, err := s.uploadBatch(ctx, batch)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return report, err
		}
		if !ok {
			report.SkippedBatches++
			continue
		}
		report.Uploaded += len(batch)
		if s.config.EnableDebugLogging {
			log.Printf("[UPLOAD] Batch %d: %d/%d documents uploaded", report.Batches, report.Uploaded, len(docs))
		}
	}

	report.Duration = time.Since(start)
	log.Printf("[UPLOAD] Uploaded %d of %d documents in %v (%d batches skipped, %d rows incomplete)",
		report.Uploaded, report.Documents, report.Duration.Round(time.Millisecond), report.SkippedBatches, report.SkippedRows)
	return report, nil
}

// uploadBatch embeds and upserts one batch. It reports false when the batch
// was given up on and an error only when ctx is done.
func (s *UploadService) uploadBatch(ctx context.Context, batch []domain.VectorDocument) (bool, error) {
	texts := make([]string, len(batch))
	for i, doc := range batch {
		texts[i] = doc.Text
	}

	var vectors [][]float32
	err := s.retry(ctx, s.config.EmbedRetries, func() error {
		var err error
		vectors, err = s.embedder.Embed(ctx, texts)
		if err == nil && len(vectors) != len(batch) {
			err = fmt.Errorf("%w: got %d embeddings for %d texts", domain.ErrEmbeddingFailure, len(vectors), len(batch))
		}
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		log.Printf("[UPLOAD] Skipping batch of %d documents starting at %s: %v", len(batch), batch[0].ID, err)
		return false, nil
	}

	for i := range batch {
		batch[i].Embedding = vectors[i]
	}

	err = s.retry(ctx, s.config.UpsertRetries, func() error {
		return s.store.Upsert(ctx, batch)
	})
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		log.Printf("[UPLOAD] Skipping batch of %d documents starting at %s: %v", len(batch), batch[0].ID, err)
		return false, nil
	}
	return true, nil
}

// retry calls fn up to attempts times, waiting 1s, 2s, 4s and so on between failures
func (s *UploadService) retry(ctx context.Context, attempts int, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := s.sleep(ctx, time.Duration(1<<(attempt-1))*time.Second); err != nil {
				return err
			}
		}
		if lastErr = fn(); lastErr == nil {
			return nil
		}
		if s.config.EnableDebugLogging {
			log.Printf("[UPLOAD] Attempt %d/%d failed: %v", attempt+1, attempts, lastErr)
		}
	}
	return lastErr
}

// BuildDocuments turns table rows into vector documents. The embedded text is
// the food name, the metadata every non-missing cell. Rows without a record id
// or a name are skipped and counted.
func BuildDocuments(table *domain.FoodTable) ([]domain.VectorDocument, int) {
	docs := make([]domain.VectorDocument, 0, len(table.Rows))
	skipped := 0
	for _, row := range table.Rows {
		recordID := table.Value(row, domain.ColRecordID)
		name := table.Value(row, domain.ColName)
		if !recordID.Valid || !name.Valid {
			skipped++
			continue
		}

		metadata := make(map[string]string, len(table.Columns))
		for i, c := range table.Columns {
			cell := row.Cells[i]
			if !cell.Valid {
				continue
			}
			if c.IsText() {
				metadata[c.Label] = cell.Text
			} else {
				metadata[c.Label] = csvtable.FormatNumber(cell.Num)
			}
		}

		docs = append(docs, domain.VectorDocument{
			ID:       DocumentID(recordID.Text),
			Text:     name.Text,
			Metadata: metadata,
		})
	}
	return docs, skipped
}

// DocumentID derives the point id of a record; a record id always maps to the same UUID
func DocumentID(recordID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(recordID)).String()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
