package intake

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"markercompare/internal/blob"
	"markercompare/pkg/domain"
)

type recordingSink struct {
	bucket string
	cases  []domain.Case
	err    error
}

func (r *recordingSink) UploadCases(_ context.Context, bucket string, cases []domain.Case) error {
	r.bucket = bucket
	r.cases = cases
	return r.err
}

func reportFor(code string, markers ...string) []byte {
	out := "Sample File\tSample Name\tMarker\tAllele 1\tAllele 2\n"
	for i := 0; i+2 < len(markers); i += 3 {
		out += "f\t" + code + "\t" + markers[i] + "\t" + markers[i+1] + "\t" + markers[i+2] + "\n"
	}
	return []byte(out)
}

func fixedID() string { return "batch-1" }

func TestIngestGroupsByCaseFolder(t *testing.T) {
	sink := &recordingSink{}
	archive := blob.NewMemory()
	in := NewIngestor(sink, Options{Archive: archive, NewBatchID: fixedID})

	batch, err := in.Ingest(context.Background(), "12-03-2025", []File{
		{Path: "V2445 Nguyen/a.txt", Content: reportFor("V2445A Father", "vWA", "16", "17")},
		{Path: "V2445 Nguyen/b.txt", Content: reportFor("V2445B Child", "vWA", "17", "18")},
		{Path: "T2501/a.txt", Content: reportFor("T2501A Mother", "FGA", "20", "22")},
		{Path: "loose.txt", Content: reportFor("V2446A Alone", "TPOX", "8", "9")},
	})
	require.NoError(t, err)
	assert.Equal(t, "batch-1", batch.ID)
	assert.Equal(t, "12-03-2025", sink.bucket)
	require.Len(t, sink.cases, 3)
	assert.Equal(t, "V2445", sink.cases[0].BaseCode)
	assert.Equal(t, []string{"V2445A", "V2445B"}, sink.cases[0].Codes())
	assert.Equal(t, "T2501", sink.cases[1].BaseCode)
	assert.Equal(t, "V2446", sink.cases[2].BaseCode)

	require.Len(t, batch.Archived, 4)
	info, err := archive.Head(context.Background(), blob.ReportKey("12-03-2025", "batch-1", "V2445 Nguyen", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "V2445B", info.Metadata["sample"])

	_, rc, err := archive.Get(context.Background(), blob.ReportKey("12-03-2025", "batch-1", "V2446", "loose.txt"))
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Contains(t, string(body), "V2446A Alone")
}

func TestIngestSkipsReportsWithoutCode(t *testing.T) {
	sink := &recordingSink{}
	in := NewIngestor(sink, Options{NewBatchID: fixedID})
	batch, err := in.Ingest(context.Background(), "d1", []File{
		{Path: "V2445/a.txt", Content: reportFor("V2445A A", "vWA", "1", "2")},
		{Path: "V2445/empty.txt", Content: []byte("header only\n")},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"V2445/empty.txt"}, batch.Skipped)
	require.Len(t, sink.cases, 1)
	assert.True(t, sink.cases[0].SingleSample())
}

func TestIngestSkipsSamplesOutsideTheirCase(t *testing.T) {
	sink := &recordingSink{}
	archive := blob.NewMemory()
	in := NewIngestor(sink, Options{Archive: archive, NewBatchID: fixedID})
	batch, err := in.Ingest(context.Background(), "d1", []File{
		{Path: "V2445 Fam/a.txt", Content: reportFor("V2445A Father", "vWA", "16", "17")},
		{Path: "V2445 Fam/b.txt", Content: reportFor("V2446B Stray", "vWA", "17", "18")},
		{Path: "x/c.txt", Content: reportFor("v2447a lower", "vWA", "1", "2")},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"V2445 Fam/b.txt", "x/c.txt"}, batch.Skipped)
	require.Len(t, sink.cases, 1)
	assert.Equal(t, "V2445", sink.cases[0].BaseCode)
	assert.Equal(t, []string{"V2445A"}, sink.cases[0].Codes())
	assert.Len(t, batch.Archived, 1)

	_, err = in.Ingest(context.Background(), "d1", []File{
		{Path: "x/c.txt", Content: reportFor("v2447a lower", "vWA", "1", "2")},
	})
	assert.True(t, domain.IsInvalidInput(err))
}

func TestIngestRejectsEmptyUploads(t *testing.T) {
	sink := &recordingSink{}
	in := NewIngestor(sink, Options{})

	_, err := in.Ingest(context.Background(), "", nil)
	assert.True(t, domain.IsInvalidInput(err))

	_, err = in.Ingest(context.Background(), "d1", []File{{Path: "x.txt", Content: []byte("")}})
	assert.True(t, domain.IsInvalidInput(err))
	assert.Nil(t, sink.cases)
}

func TestIngestPropagatesSinkError(t *testing.T) {
	boom := errors.New("boom")
	in := NewIngestor(&recordingSink{err: boom}, Options{})
	_, err := in.Ingest(context.Background(), "d1", []File{{Path: "a.txt", Content: reportFor("V2445A A", "vWA", "1", "2")}})
	assert.ErrorIs(t, err, boom)
}

func TestIngestDirWalksRecursively(t *testing.T) {
	root := filepath.Join(t.TempDir(), "05-06-2025")
	write := func(rel string, content []byte) {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, content, 0o644))
	}
	write("V2450 Le/nested/a.txt", reportFor("V2450A A", "vWA", "1", "2"))
	write("V2450 Le/b.TXT", reportFor("V2450B B", "vWA", "2", "3"))
	write("V2450 Le/notes.doc", []byte("ignored"))

	sink := &recordingSink{}
	in := NewIngestor(sink, Options{})
	batch, err := in.IngestDir(context.Background(), "", root)
	require.NoError(t, err)
	assert.Equal(t, "05-06-2025", batch.Bucket)
	require.Len(t, sink.cases, 1)
	assert.ElementsMatch(t, []string{"V2450A", "V2450B"}, sink.cases[0].Codes())
}

func TestCaseFolder(t *testing.T) {
	assert.Equal(t, "V2445 Nguyen", caseFolder("V2445 Nguyen/a.txt", "V2445A"))
	assert.Equal(t, "T2501", caseFolder(`T2501\a.txt`, "T2501A"))
	assert.Equal(t, "V2445", caseFolder("misc/a.txt", "V2445C"))
	assert.Equal(t, "V2445", caseFolder("a.txt", "V2445C"))
}
