package jobs

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"
)

const (
	HeadHunterURL    = "https://api.hh.ru"
	SourceHeadHunter = "hh.ru"

	vacanciesPath   = "/vacancies"
	userAgent       = "career-assistant/1.0 (jobs-ingest)"
	contentEncoding = "gzip"
	// Max value for search per page.
	perPage = 100
	// hh.ru serves at most 2000 results per search.
	defaultMaxPages = 20
)

var markup = regexp.MustCompile(`<[^>]*>`)

// SearchParams is an hh.ru vacancy search. Fields map to query parameters
// through the hhparam tag; zero values are omitted.
type SearchParams struct {
	Text       string   `hhparam:"text"`
	Areas      []int    `hhparam:"area"`
	Schedules  []string `hhparam:"schedule"`
	Experience string   `hhparam:"experience"`
	OrderBy    string   `hhparam:"order_by"`
	Period     uint     `hhparam:"period"`
	PerPage    int      `hhparam:"per_page"`
	// MaxPages limits pagination. It is not sent to the API.
	MaxPages int
	// Details fetches every vacancy to get its full description and key skills.
	Details bool
}

// HeadHunter reads vacancies from the hh.ru API. A token is optional for
// vacancy search.
type HeadHunter struct {
	token      string
	logger     *zap.Logger
	HTTPClient *http.Client
	UserAgent  string
	APIURL     string
}

func NewHeadHunter(token string, log *zap.Logger) *HeadHunter {
	if log == nil {
		log = zap.NewNop()
	}
	return &HeadHunter{
		token:  token,
		logger: log.With(zap.String("source", SourceHeadHunter)),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		UserAgent: userAgent,
		APIURL:    HeadHunterURL,
	}
}

type itemResponse struct {
	Items   []any `json:"items"`
	Found   int   `json:"found"`
	Pages   int   `json:"pages"`
	Page    int   `json:"page"`
	PerPage int   `json:"per_page"`
}

type named struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// Vacancy is the part of an hh.ru vacancy the catalog keeps.
type Vacancy struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name,omitempty"`
	Area     named  `json:"area,omitempty"`
	Employer named  `json:"employer,omitempty"`
	Salary   *struct {
		From     int    `json:"from,omitempty"`
		To       int    `json:"to,omitempty"`
		Currency string `json:"currency,omitempty"`
	} `json:"salary,omitempty"`
	Experience named `json:"experience,omitempty"`
	Schedule   named `json:"schedule,omitempty"`
	Snippet    struct {
		Requirement    string `json:"requirement,omitempty"`
		Responsibility string `json:"responsibility,omitempty"`
	} `json:"snippet,omitempty"`
	Description  string  `json:"description,omitempty"`
	KeySkills    []named `json:"key_skills,omitempty"`
	AlternateURL string  `json:"alternate_url,omitempty"`
	PublishedAt  string  `json:"published_at,omitempty"`
}

// Job converts the vacancy into a catalog job.
func (v *Vacancy) Job() Job {
	job := Job{
		ID:          "hh-" + v.ID,
		Title:       v.Name,
		Company:     v.Employer.Name,
		Location:    v.Area.Name,
		Experience:  v.Experience.Name,
		Schedule:    v.Schedule.Name,
		URL:         v.AlternateURL,
		PublishedAt: v.PublishedAt,
		Source:      SourceHeadHunter,
	}
	if v.Salary != nil {
		job.SalaryFrom = v.Salary.From
		job.SalaryTo = v.Salary.To
		job.Currency = v.Salary.Currency
	}
	for _, skill := range v.KeySkills {
		job.Skills = append(job.Skills, skill.Name)
	}

	job.Description = plainText(v.Description)
	if job.Description == "" {
		parts := []string{plainText(v.Snippet.Requirement), plainText(v.Snippet.Responsibility)}
		job.Description = strings.TrimSpace(strings.Join(parts, "\n"))
	}
	return job
}

// Search runs a vacancy search across all result pages.
func (h *HeadHunter) Search(ctx context.Context, params SearchParams) ([]Job, error) {
	if params.PerPage <= 0 {
		params.PerPage = perPage
	}
	if params.MaxPages <= 0 {
		params.MaxPages = defaultMaxPages
	}

	items, err := h.getItems(ctx, h.APIURL+vacanciesPath, buildParams(&params), params.MaxPages)
	if err != nil {
		return nil, err
	}

	var vacancies []*Vacancy
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &vacancies,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(items); err != nil {
		return nil, fmt.Errorf("decode vacancies: %w", err)
	}

	jobs := make([]Job, 0, len(vacancies))
	for _, v := range vacancies {
		if params.Details {
			full, err := h.Vacancy(ctx, v.ID)
			if err != nil {
				h.logger.Warn("vacancy details unavailable", zap.String("vacancy_id", v.ID), zap.Error(err))
			} else {
				v = full
			}
		}
		jobs = append(jobs, v.Job())
	}

	h.logger.Info("vacancies fetched", zap.String("text", params.Text), zap.Int("count", len(jobs)))
	return jobs, nil
}

// Vacancy fetches one vacancy with its full description.
func (h *HeadHunter) Vacancy(ctx context.Context, id string) (*Vacancy, error) {
	var v Vacancy
	if err := h.getJSON(ctx, fmt.Sprintf("%s%s/%s", h.APIURL, vacanciesPath, url.PathEscape(id)), nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// getItems makes GET requests to the API and returns items from all pages.
func (h *HeadHunter) getItems(ctx context.Context, endpoint string, q url.Values, maxPages int) ([]any, error) {
	var items []any

	for page := 0; page < maxPages; page++ {
		q.Set("page", strconv.Itoa(page))

		var response itemResponse
		if err := h.getJSON(ctx, endpoint, q, &response); err != nil {
			return nil, err
		}
		items = append(items, response.Items...)

		if page == 0 {
			h.logger.Debug("got response from hh.ru",
				zap.Int("found", response.Found),
				zap.Int("pages", response.Pages),
				zap.Int("max items per page", response.PerPage),
			)
		}
		if response.Page >= response.Pages-1 {
			break
		}
	}

	return items, nil
}

func (h *HeadHunter) getJSON(ctx context.Context, endpoint string, q url.Values, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	h.setHeaders(req)
	if q != nil {
		req.URL.RawQuery = q.Encode()
	}

	h.logger.Debug("make request", zap.String("url", req.URL.String()))
	resp, err := h.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return err
		}
		defer gz.Close()
		reader = gz
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(reader, 512))
		return fmt.Errorf("bad status: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(reader).Decode(target); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (h *HeadHunter) setHeaders(req *http.Request) {
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}
	req.Header.Set("User-Agent", h.UserAgent)
	req.Header.Set("Accept-Encoding", contentEncoding)
	req.Header.Set("Accept", "application/json")
}

func buildParams(params *SearchParams) url.Values {
	q := url.Values{}
	value := reflect.ValueOf(params).Elem()
	for _, field := range reflect.VisibleFields(value.Type()) {
		key := field.Tag.Get("hhparam")
		if key == "" {
			continue
		}
		switch v := value.FieldByIndex(field.Index).Interface().(type) {
		case []int:
			for _, item := range v {
				q.Add(key, strconv.Itoa(item))
			}
		case []string:
			for _, item := range v {
				q.Add(key, item)
			}
		default:
			s := fmt.Sprintf("%v", v)
			if s != "" && s != "0" {
				q.Set(key, s)
			}
		}
	}
	return q
}

func plainText(s string) string {
	s = markup.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(html.UnescapeString(s)), " ")
}
