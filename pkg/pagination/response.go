package pagination

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
)

// HeaderTransactionID carries the server-assigned id of a request.
const HeaderTransactionID = "x-transaction-id"

// usageCapTitle is the problem title the API uses for an exhausted
// account-level quota.
const usageCapTitle = "UsageCapExceeded"

// Response is one decoded API response.
type Response struct {
	StatusCode int
	Header     http.Header

	// Body is the decoded JSON object, nil when the body is not an object.
	// Numbers decode as json.Number so large ids keep their digits.
	Body map[string]any

	// Raw is the undecoded body.
	Raw []byte
}

// Decode builds a Response from a status, headers and body bytes.
func Decode(status int, header http.Header, raw []byte) *Response {
	resp := &Response{StatusCode: status, Header: header, Raw: raw}
	if resp.Header == nil {
		resp.Header = http.Header{}
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var body map[string]any
	if err := dec.Decode(&body); err == nil {
		resp.Body = body
	}

	return resp
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// HasData reports whether the body has a data key at all.
func (r *Response) HasData() bool {
	_, ok := r.Body["data"]
	return ok
}

// Records returns the data array as records. ok is false when the data key
// is missing or does not hold an array of objects.
func (r *Response) Records() (records []map[string]any, ok bool) {
	items, ok := r.Body["data"].([]any)
	if !ok {
		return nil, false
	}

	records = make([]map[string]any, 0, len(items))
	for _, item := range items {
		rec, isObj := item.(map[string]any)
		if !isObj {
			return nil, false
		}
		records = append(records, rec)
	}
	return records, true
}

// Object returns the data value when it is a single object, as returned by
// lookup endpoints.
func (r *Response) Object() (map[string]any, bool) {
	obj, ok := r.Body["data"].(map[string]any)
	return obj, ok
}

// Cursor returns meta.next_token. ok is false when there is no next page.
func (r *Response) Cursor() (string, bool) {
	meta, ok := r.Body["meta"].(map[string]any)
	if !ok {
		return "", false
	}
	token, ok := meta["next_token"].(string)
	if !ok || token == "" {
		return "", false
	}
	return token, true
}

// Errors returns the objects of the errors array.
func (r *Response) Errors() []map[string]any {
	items, _ := r.Body["errors"].([]any)
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if obj, ok := item.(map[string]any); ok {
			out = append(out, obj)
		}
	}
	return out
}

// Title returns the problem title of an error response.
func (r *Response) Title() string {
	title, _ := r.Body["title"].(string)
	return title
}

// Detail returns the problem detail of an error response.
func (r *Response) Detail() string {
	detail, _ := r.Body["detail"].(string)
	return detail
}

// UsageCapExceeded reports the distinguished account-level quota error.
func (r *Response) UsageCapExceeded() bool {
	if r.Title() == usageCapTitle {
		return true
	}
	problem, _ := r.Body["type"].(string)
	return strings.HasSuffix(problem, "/usage-capped")
}

// TransactionID returns the x-transaction-id header.
func (r *Response) TransactionID() string {
	return r.Header.Get(HeaderTransactionID)
}

// StepKind tags the outcome of one page request.
type StepKind int

const (
	// StepPage carries records and, unless it is the last page, a cursor.
	StepPage StepKind = iota

	// StepExhausted ends the loop normally: there is nothing more to read.
	StepExhausted

	// StepError ends the loop with an error.
	StepError
)

// String implements fmt.Stringer.
func (k StepKind) String() string {
	switch k {
	case StepPage:
		return "page"
	case StepExhausted:
		return "exhausted"
	case StepError:
		return "error"
	default:
		return "unknown"
	}
}

// Step is the classified outcome of one page request.
type Step struct {
	Kind    StepKind
	Records []map[string]any
	Cursor  string
	Err     error
}

// Classify turns a response into a Step. The first page of a collection
// without a data key is an empty page that may still carry a cursor; a later
// page without a data key means the collection is exhausted.
func Classify(endpoint string, resp *Response, first bool) Step {
	if resp.UsageCapExceeded() {
		return Step{Kind: StepError, Err: &APIError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Title:      resp.Title(),
			Detail:     resp.Detail(),
			Err:        ErrUsageCapExceeded,
		}}
	}

	records, ok := resp.Records()
	if !ok {
		if !first {
			return Step{Kind: StepExhausted}
		}
		records = nil
	}

	cursor, _ := resp.Cursor()
	return Step{Kind: StepPage, Records: records, Cursor: cursor}
}
