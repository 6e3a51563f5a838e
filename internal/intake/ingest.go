package intake

import (
	"bytes"
	"context"
	"fmt"
	iofs "io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"markercompare/internal/blob"
	"markercompare/internal/logging"
	"markercompare/internal/metrics"
	"markercompare/pkg/domain"
)

// caseFolderPattern recognises a case folder name by its base code prefix.
var caseFolderPattern = regexp.MustCompile(`^[VT]\d{4}`)

// File is one uploaded report. Path is slash separated, conventionally
// "<caseFolder>/<name>.txt".
type File struct {
	Path    string
	Content []byte
}

// Sink receives parsed case groups for one date bucket.
type Sink interface {
	UploadCases(ctx context.Context, bucket string, cases []domain.Case) error
}

// Options configures an Ingestor.
type Options struct {
	// Archive stores the raw report text; nil skips archiving.
	Archive blob.Store
	Logger  *zap.Logger
	Metrics metrics.Recorder
	// NewBatchID overrides batch id generation (uuid v4 by default).
	NewBatchID func() string
}

// Ingestor parses uploaded reports, archives them and forwards the resulting
// cases to a Sink.
type Ingestor struct {
	sink    Sink
	archive blob.Store
	log     *zap.Logger
	metrics metrics.Recorder
	newID   func() string
}

// NewIngestor constructs an Ingestor writing to sink.
func NewIngestor(sink Sink, opts Options) *Ingestor {
	in := &Ingestor{
		sink:    sink,
		archive: opts.Archive,
		log:     logging.OrNop(opts.Logger),
		metrics: opts.Metrics,
		newID:   opts.NewBatchID,
	}
	if in.metrics == nil {
		in.metrics = metrics.Noop{}
	}
	if in.newID == nil {
		in.newID = func() string { return uuid.NewString() }
	}
	return in
}

// Batch summarises one ingest call.
type Batch struct {
	ID       string        `json:"id"`
	Bucket   string        `json:"bucket"`
	Cases    []domain.Case `json:"cases"`
	Skipped  []string      `json:"skipped,omitempty"`
	Archived []blob.Info   `json:"archived,omitempty"`
}

// Ingest parses files, groups them into cases by case folder and uploads
// them into bucket. Files whose sample code is missing, malformed or belongs to
// another case than its folder are skipped and listed in the batch.
func (in *Ingestor) Ingest(ctx context.Context, bucket string, files []File) (batch Batch, err error) {
	defer metrics.Track(ctx, in.metrics, "intake.ingest")(&err)
	if strings.TrimSpace(bucket) == "" {
		return Batch{}, domain.ErrInvalidInput{Reason: "date bucket required"}
	}
	batch = Batch{ID: in.newID(), Bucket: bucket}
	log := in.log.With(zap.String("batch", batch.ID), zap.String("table", bucket))

	groups := map[string]int{}
	for _, f := range files {
		raw := string(f.Content)
		delim := DetectDelimiter(raw)
		if delim != '\t' {
			log.Warn("report is not tab delimited", zap.String("file", f.Path), zap.String("delimiter", string(delim)))
		}
		sample := ParseDelimited(raw, delim)
		if sample.Code == "" {
			log.Warn("skipping report without sample code", zap.String("file", f.Path))
			batch.Skipped = append(batch.Skipped, f.Path)
			continue
		}
		if len(sample.Markers) == 0 {
			log.Warn("report has no marker calls", zap.String("sample", sample.Code), zap.String("file", f.Path))
		}
		if !domain.DefaultCodePattern.MatchString(sample.Code) {
			log.Warn("skipping report with malformed sample code", zap.String("sample", sample.Code), zap.String("file", f.Path))
			batch.Skipped = append(batch.Skipped, f.Path)
			continue
		}
		folder := caseFolder(f.Path, sample.Code)
		base := domain.BaseCode(folder)
		if sample.BaseCode() != base {
			log.Warn("skipping report filed under another case",
				zap.String("sample", sample.Code), zap.String("base_code", base), zap.String("file", f.Path))
			batch.Skipped = append(batch.Skipped, f.Path)
			continue
		}
		idx, ok := groups[base]
		if !ok {
			idx = len(batch.Cases)
			groups[base] = idx
			batch.Cases = append(batch.Cases, domain.Case{BaseCode: base})
		}
		batch.Cases[idx].Samples = append(batch.Cases[idx].Samples, sample)

		if in.archive != nil {
			info, err := in.archive.Put(ctx, blob.ReportKey(bucket, batch.ID, folder, f.Path), bytes.NewReader(f.Content), blob.PutOptions{
				ContentType: "text/plain; charset=utf-8",
				Metadata:    map[string]string{"sample": sample.Code},
			})
			if err != nil {
				return batch, fmt.Errorf("archive %s: %w", f.Path, err)
			}
			batch.Archived = append(batch.Archived, info)
		}
	}
	if len(batch.Cases) == 0 {
		return batch, domain.ErrInvalidInput{Reason: "no parsable reports in upload"}
	}
	for _, c := range batch.Cases {
		if c.SingleSample() {
			log.Warn("case has a single sample", zap.String("base_code", c.BaseCode))
		}
	}
	if err := in.sink.UploadCases(ctx, bucket, batch.Cases); err != nil {
		return batch, err
	}
	log.Info("ingested batch", zap.Int("cases", len(batch.Cases)), zap.Int("skipped", len(batch.Skipped)))
	return batch, nil
}

// IngestDir reads every .txt report below dir and ingests them into bucket.
// Paths are taken relative to dir so the first segment names the case folder.
func (in *Ingestor) IngestDir(ctx context.Context, bucket, dir string) (Batch, error) {
	var files []File
	err := filepath.WalkDir(dir, func(p string, d iofs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(p), ".txt") {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		content, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		files = append(files, File{Path: filepath.ToSlash(rel), Content: content})
		return nil
	})
	if err != nil {
		return Batch{}, fmt.Errorf("walk %s: %w", dir, err)
	}
	if bucket == "" {
		bucket = filepath.Base(filepath.Clean(dir))
	}
	return in.Ingest(ctx, bucket, files)
}

// caseFolder returns the first path segment when it carries a base code,
// otherwise the base code of the parsed sample.
func caseFolder(p, code string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	if first, _, found := strings.Cut(p, "/"); found && caseFolderPattern.MatchString(first) {
		return first
	}
	if dir := path.Dir(p); dir != "." && caseFolderPattern.MatchString(path.Base(dir)) {
		return path.Base(dir)
	}
	return domain.BaseCode(code)
}
