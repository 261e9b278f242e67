package dto

// FileRepPayload is the metadata copied onto a version by persist.
type FileRepPayload struct {
	Extension string `json:"extension" form:"extension"`
	Path      string `json:"path" form:"path"`
	MimeType  string `json:"mime_type" form:"mime_type"`
	Size      int64  `json:"size" form:"size"`
	IsPublic  bool   `json:"is_public" form:"is_public"`
}

// FilePayload adds naming information to FileRepPayload.
type FilePayload struct {
	FileRepPayload
	OriginalName   string `json:"original_name" form:"original_name"`
	IsOriginalName bool   `json:"is_original_name" form:"is_original_name"`
	Name           string `json:"name" form:"name"`
}

// Base64Payload carries the file bytes as standard base64.
type Base64Payload struct {
	FilePayload
	Base64   string `json:"base64" binding:"required"`
	Optimize bool   `json:"optimize"`
}

// MultipartFile mirrors a multipart upload already spooled to local disk.
type MultipartFile struct {
	FieldName    string `json:"field_name"`
	OriginalName string `json:"original_name"`
	Encoding     string `json:"encoding"`
	MimeType     string `json:"mime_type"`
	Destination  string `json:"destination"`
	FileName     string `json:"file_name"`
	Path         string `json:"path"`
	Size         int64  `json:"size"`
}

// MultipartPayload carries a spooled multipart file.
type MultipartPayload struct {
	FilePayload
	File     MultipartFile `json:"-"`
	Optimize bool          `json:"optimize" form:"optimize"`
}

// PresignPayload asks for a presigned URL. Name is either a version ID or a
// version name; Expiry is in seconds.
type PresignPayload struct {
	Name     string `json:"name" form:"name" binding:"required"`
	Expiry   int    `json:"expiry" form:"expiry"`
	IsPublic bool   `json:"is_public" form:"is_public"`
}

// CreateBucketPayload provisions the two buckets of a bucket group. An empty
// public policy defaults to anonymous read; an empty private policy clears it.
type CreateBucketPayload struct {
	Name                string `json:"name" binding:"required"`
	Region              string `json:"region"`
	PrivateBucketPolicy string `json:"private_bucket_policy"`
	PublicBucketPolicy  string `json:"public_bucket_policy"`
}

// ListObjectsPayload lists backend objects. Bucket overrides the bucket
// derived from the group and IsPublic.
type ListObjectsPayload struct {
	IsPublic   bool   `json:"is_public" form:"is_public"`
	Bucket     string `json:"bucket" form:"bucket"`
	Prefix     string `json:"prefix" form:"prefix"`
	Recursive  bool   `json:"recursive" form:"recursive"`
	MaxKeys    int    `json:"max_keys" form:"max_keys"`
	StartAfter string `json:"start_after" form:"start_after"`
}

// Criteria filters and pages version listings.
type Criteria struct {
	Page      int    `json:"page" form:"page"`
	PageSize  int    `json:"page_size" form:"page_size"`
	OrderBy   string `json:"order_by" form:"order_by"`
	OrderDesc bool   `json:"order_desc" form:"order_desc"`
	IsPublic  *bool  `json:"is_public" form:"is_public"`
	Search    string `json:"search" form:"search"`
}
