package search

// Query describes a prompt search request.
type Query struct {
	Text     string
	Category string
	Tags     []string
	ActorID  string
	Limit    int
}

// Result is a single prompt hit returned to the caller.
type Result struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Tags        []string `json:"tags"`
	AuthorName  string   `json:"authorName"`
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// PromptRecord is the data indexed per prompt.
type PromptRecord struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Content     string   `json:"content"`
	Category    string   `json:"category"`
	Tags        []string `json:"tags"`
	AuthorID    string   `json:"authorId"`
	AuthorName  string   `json:"authorName"`
	IsPublic    bool     `json:"isPublic"`
}
