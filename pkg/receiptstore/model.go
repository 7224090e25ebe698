package receiptstore

type PutObjectResponse struct {
	Key string `json:"key"`
	URL string `json:"url"`
}
