package llm

// Image submission body.
type providerImageRequest struct {
	Model string `json:"model"`
	Input struct {
		Prompt string `json:"prompt"`
	} `json:"input"`
	Parameters struct {
		Size string `json:"size"`
		N    int    `json:"n"`
	} `json:"parameters"`
}

// Shape shared by the submission and task responses.
type providerTaskResponse struct {
	RequestID string `json:"request_id"`
	Output    struct {
		TaskID     string `json:"task_id"`
		TaskStatus string `json:"task_status"`
		Message    string `json:"message"`
		Code       string `json:"code"`
		Results    []struct {
			URL string `json:"url"`
		} `json:"results"`
	} `json:"output"`
}

func (r *providerTaskResponse) firstURL() string {
	for _, res := range r.Output.Results {
		if res.URL != "" {
			return res.URL
		}
	}
	return ""
}

type providerErrorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}
