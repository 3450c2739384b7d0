package jobs_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/spigell/career-assistant/internal/docstore"
	"github.com/spigell/career-assistant/internal/jobs"
)

type recordingWriter struct {
	mu       sync.Mutex
	payloads []map[string]any
	err      error
}

func (w *recordingWriter) Add(_ context.Context, payloads ...map[string]any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.payloads = append(w.payloads, payloads...)
	return nil
}

// lengthEmbedder maps a text onto two axes so indexing works without a model.
type lengthEmbedder struct{}

func (lengthEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = []float32{float32(len(text)), float32(strings.Count(strings.ToLower(text), "go"))}
	}
	return out, nil
}

var sample = []jobs.Job{
	{ID: "1", Title: "Python Developer", Location: "Jakarta", Skills: []string{"python", "django"}},
	{ID: "2", Title: "Go Developer", Company: "Acme", SalaryFrom: 3000, Currency: "USD"},
}

var _ = Describe("Catalog", func() {
	var (
		ctx    context.Context
		path   string
		writer *recordingWriter
		cat    *jobs.Catalog
	)

	BeforeEach(func() {
		ctx = context.Background()
		path = filepath.Join(GinkgoT().TempDir(), "jobs.db")
		writer = &recordingWriter{}

		var err error
		cat, err = jobs.OpenCatalog(path, writer, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(cat.Close)
	})

	It("inserts new jobs and indexes them", func() {
		stats, err := cat.Write(ctx, sample)
		Expect(err).NotTo(HaveOccurred())
		Expect(stats).To(Equal(jobs.WriteStats{Inserted: 2, Indexed: 2}))

		Expect(cat.Count(ctx)).To(Equal(2))
		Expect(writer.payloads).To(HaveLen(2))
		Expect(writer.payloads[1]["text"]).To(ContainSubstring("Title: Go Developer"))
		Expect(writer.payloads[1]["job_id"]).To(Equal("2"))
	})

	It("stores rows that SQL can query", func() {
		_, err := cat.Write(ctx, sample)
		Expect(err).NotTo(HaveOccurred())

		db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
		Expect(err).NotTo(HaveOccurred())
		defer db.Close()

		var skills string
		Expect(db.QueryRow(`SELECT skills FROM jobs WHERE id = '1'`).Scan(&skills)).To(Succeed())
		Expect(skills).To(Equal("python,django"))
	})

	It("updates existing jobs without indexing them again", func() {
		_, err := cat.Write(ctx, sample)
		Expect(err).NotTo(HaveOccurred())

		changed := []jobs.Job{{ID: "2", Title: "Senior Go Developer"}, {ID: "3", Title: "Nurse"}}
		stats, err := cat.Write(ctx, changed)
		Expect(err).NotTo(HaveOccurred())
		Expect(stats).To(Equal(jobs.WriteStats{Inserted: 1, Updated: 1, Indexed: 1}))
		Expect(writer.payloads).To(HaveLen(3))
		Expect(cat.Count(ctx)).To(Equal(3))
	})

	It("treats duplicates within one batch as updates", func() {
		stats, err := cat.Write(ctx, []jobs.Job{{ID: "9", Title: "A"}, {ID: "9", Title: "B"}})
		Expect(err).NotTo(HaveOccurred())
		Expect(stats).To(Equal(jobs.WriteStats{Inserted: 1, Updated: 1, Indexed: 1}))
	})

	It("rolls back when indexing fails", func() {
		writer.err = errors.New("embedder down")

		_, err := cat.Write(ctx, sample)
		Expect(err).To(MatchError(ContainSubstring("embedder down")))
		Expect(cat.Count(ctx)).To(Equal(0))
	})

	It("rejects invalid jobs", func() {
		_, err := cat.Write(ctx, []jobs.Job{{ID: "1"}})
		Expect(err).To(MatchError(ContainSubstring("title is required")))
		Expect(cat.Count(ctx)).To(Equal(0))
	})

	It("fills a real vector index", func() {
		store, err := docstore.Open(filepath.Join(GinkgoT().TempDir(), "vectors.db"), lengthEmbedder{}, 2, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(store.Close)

		withIndex, err := jobs.OpenCatalog(filepath.Join(GinkgoT().TempDir(), "jobs.db"), store, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(withIndex.Close)

		_, err = withIndex.Write(ctx, sample)
		Expect(err).NotTo(HaveOccurred())
		Expect(store.Count(ctx)).To(Equal(2))
	})
})
