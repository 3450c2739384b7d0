package sqlstore_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/spigell/career-assistant/internal/llm"
	"github.com/spigell/career-assistant/internal/llm/llmtest"
	"github.com/spigell/career-assistant/internal/sqlstore"
)

func seedJobs(path string) {
	db, err := sql.Open("sqlite3", path)
	Expect(err).NotTo(HaveOccurred())
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE jobs (id TEXT PRIMARY KEY, title TEXT, location TEXT, skills TEXT)`)
	Expect(err).NotTo(HaveOccurred())
	_, err = db.Exec(`INSERT INTO jobs VALUES
		('1', 'Python Developer', 'Jakarta', 'python,django'),
		('2', 'Data Scientist', 'Bandung', 'python,sql,statistics'),
		('3', 'Frontend Engineer', 'Jakarta', 'typescript,react')`)
	Expect(err).NotTo(HaveOccurred())
}

// scripted answers SQL prompts from a queue and echoes the rows for summaries.
func scripted(queries ...string) *llmtest.Generator {
	return &llmtest.Generator{Respond: func(req *llm.Request) llmtest.Reply {
		prompt := llmtest.PromptText(req)
		if strings.Contains(prompt, "SQL:") {
			if len(queries) == 0 {
				return llmtest.Reply{Err: errors.New("no more queries")}
			}
			q := queries[0]
			queries = queries[1:]
			return llmtest.Reply{Text: "```sql\n" + q + "\n```", Usage: llm.Usage{InputTokens: 5, OutputTokens: 2}}
		}
		rows := prompt[strings.Index(prompt, "Result:"):]
		return llmtest.Reply{Text: "summary of " + rows, Usage: llm.Usage{InputTokens: 4, OutputTokens: 4}}
	}}
}

var _ = Describe("Store", func() {
	var (
		path string
		ctx  context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		path = filepath.Join(GinkgoT().TempDir(), "jobs.db")
		seedJobs(path)
	})

	It("loads the schema on open", func() {
		store, err := sqlstore.Open(path, scripted(), zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		defer store.Close()

		Expect(store.Schema()).To(ContainSubstring("CREATE TABLE jobs"))
	})

	It("answers a counting question through one query and a summary", func() {
		gen := scripted("SELECT COUNT(*) AS total FROM jobs WHERE skills LIKE '%python%'")
		store, err := sqlstore.Open(path, gen, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		defer store.Close()

		answer, err := store.Answer(ctx, "How many jobs require Python?")
		Expect(err).NotTo(HaveOccurred())
		Expect(answer).To(ContainSubstring("total"))
		Expect(answer).To(ContainSubstring("2"))
		Expect(gen.Calls()).To(HaveLen(2))
	})

	It("records both model calls in the request meter", func() {
		gen := scripted("SELECT COUNT(*) FROM jobs")
		store, err := sqlstore.Open(path, gen, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		defer store.Close()

		meter := &llm.Meter{}
		_, err = store.Answer(llm.WithMeter(ctx, meter), "How many jobs are there?")
		Expect(err).NotTo(HaveOccurred())
		Expect(meter.Calls()).To(Equal(2))
		Expect(meter.Usage().InputTokens).To(Equal(9))
		Expect(meter.Usage().OutputTokens).To(Equal(6))
	})

	It("feeds a failing query back to the model", func() {
		gen := scripted("SELECT nope FROM missing_table", "SELECT title FROM jobs WHERE location = 'Jakarta' ORDER BY id")
		store, err := sqlstore.Open(path, gen, nil)
		Expect(err).NotTo(HaveOccurred())
		defer store.Close()

		answer, err := store.Answer(ctx, "Which jobs are in Jakarta?")
		Expect(err).NotTo(HaveOccurred())
		Expect(answer).To(ContainSubstring("Python Developer"))
		Expect(answer).To(ContainSubstring("Frontend Engineer"))

		calls := gen.Calls()
		Expect(calls).To(HaveLen(3))
		Expect(llmtest.PromptText(calls[1])).To(ContainSubstring("missing_table"))
	})

	It("refuses mutating statements and gives up after the configured attempts", func() {
		gen := scripted("DELETE FROM jobs", "DROP TABLE jobs")
		store, err := sqlstore.Open(path, gen, nil, sqlstore.WithAttempts(2))
		Expect(err).NotTo(HaveOccurred())
		defer store.Close()

		_, err = store.Answer(ctx, "Remove all jobs")
		Expect(err).To(MatchError(ContainSubstring("error executing query")))
		Expect(errors.Is(err, sqlstore.ErrMutatingQuery)).To(BeTrue())

		result, err := store.Query(ctx, "SELECT COUNT(*) FROM jobs")
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Rows[0][0]).To(Equal("3"))
	})

	It("rejects writes before they reach the database", func() {
		store, err := sqlstore.Open(path, scripted(), nil)
		Expect(err).NotTo(HaveOccurred())
		defer store.Close()

		_, err = store.Query(ctx, "INSERT INTO jobs VALUES ('4', 'x', 'y', 'z')")
		Expect(err).To(MatchError(sqlstore.ErrMutatingQuery))
	})

	It("caps the number of rows", func() {
		store, err := sqlstore.Open(path, scripted(), nil, sqlstore.WithMaxRows(2))
		Expect(err).NotTo(HaveOccurred())
		defer store.Close()

		result, err := store.Query(ctx, "SELECT id FROM jobs ORDER BY id")
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Rows).To(HaveLen(2))
		Expect(result.Truncated).To(BeTrue())
		Expect(result.String()).To(HaveSuffix("(more rows omitted)"))
	})

	It("fails to open a database without tables", func() {
		empty := filepath.Join(GinkgoT().TempDir(), "empty.db")
		db, err := sql.Open("sqlite3", empty)
		Expect(err).NotTo(HaveOccurred())
		_, err = db.Exec(`CREATE TABLE tmp (id INTEGER)`)
		Expect(err).NotTo(HaveOccurred())
		_, err = db.Exec(`DROP TABLE tmp`)
		Expect(err).NotTo(HaveOccurred())
		db.Close()

		_, err = sqlstore.Open(empty, scripted(), nil)
		Expect(err).To(MatchError(ContainSubstring("no tables")))
	})
})
