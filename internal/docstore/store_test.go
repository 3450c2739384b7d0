package docstore_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/spigell/career-assistant/internal/docstore"
)

// keywordEmbedder places texts on four axes by keyword so distances are predictable.
type keywordEmbedder struct {
	err   error
	calls int
}

var axes = []string{"python", "design", "sales", "nurse"}

func (e *keywordEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, len(axes))
		lower := strings.ToLower(text)
		for j, axis := range axes {
			vec[j] = float32(strings.Count(lower, axis))
		}
		out[i] = vec
	}
	return out, nil
}

var _ = Describe("Store", func() {
	var (
		store    *docstore.Store
		embedder *keywordEmbedder
		ctx      context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		embedder = &keywordEmbedder{}
		var err error
		store, err = docstore.Open(":memory:", embedder, len(axes), zap.NewNop())
		Expect(err).NotTo(HaveOccurred())

		Expect(store.Add(ctx,
			map[string]any{"text": "Senior Python engineer, python data pipelines", "company": "Acme"},
			map[string]any{"content": "Product design lead, design systems", "company": "Studio"},
			map[string]any{"title": "Sales manager", "summary": "sales targets"},
		)).To(Succeed())
	})

	AfterEach(func() {
		if store != nil {
			store.Close()
		}
	})

	It("creates a file backed index", func() {
		path := filepath.Join(GinkgoT().TempDir(), "vectors.db")
		s, err := docstore.Open(path, embedder, len(axes), nil)
		Expect(err).NotTo(HaveOccurred())
		defer s.Close()

		n, err := s.Count(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(0))
	})

	It("returns the closest record first with its payload", func() {
		records, err := store.Search(ctx, "python developer", 2)
		Expect(err).NotTo(HaveOccurred())
		Expect(records).To(HaveLen(2))
		Expect(records[0].Content).To(ContainSubstring("Python engineer"))
		Expect(records[0].Metadata).To(HaveKeyWithValue("company", "Acme"))
		Expect(records[0].Distance).To(BeNumerically("<=", records[1].Distance))
	})

	It("falls back to content and then the whole payload as indexed text", func() {
		records, err := store.Search(ctx, "design", 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(records).To(HaveLen(1))
		Expect(records[0].Content).To(Equal("Product design lead, design systems"))

		records, err = store.Search(ctx, "sales", 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(records[0].Content).To(ContainSubstring(`"title":"Sales manager"`))
	})

	It("never returns more than limit records", func() {
		records, err := store.Search(ctx, "python design sales", 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(len(records)).To(BeNumerically("<=", 3))

		n, err := store.Count(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(3))
	})

	It("skips embedding for a non-positive limit", func() {
		before := embedder.calls
		records, err := store.Search(ctx, "python", 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(records).To(BeEmpty())
		Expect(embedder.calls).To(Equal(before))
	})

	It("surfaces embedding failures", func() {
		embedder.err = errors.New("quota exceeded")
		_, err := store.Search(ctx, "python", 3)
		Expect(err).To(MatchError(ContainSubstring("quota exceeded")))
	})

	It("rejects vectors with the wrong dimensions", func() {
		s, err := docstore.Open(":memory:", embedder, 8, nil)
		Expect(err).NotTo(HaveOccurred())
		defer s.Close()

		err = s.Add(ctx, map[string]any{"text": "python"})
		Expect(err).To(MatchError(ContainSubstring("expected 8 dimensions")))
	})
})
