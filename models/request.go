package models

type QueryRequest struct {
	QueryInput string `json:"query_input"`
}

type UploadWebhookRequest struct {
	URL      string `json:"url"`
	FileName string `json:"file_name,omitempty"`
}

type UploadTextRequest struct {
	Text     string `json:"text"`
	FileName string `json:"file_name,omitempty"`
}

type DeleteFileRequest struct {
	FileName string `json:"file_name"`
}
