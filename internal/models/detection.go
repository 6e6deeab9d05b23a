package models

import "time"

// PageSize is the fixed number of detections requested per page.
const PageSize = 10

// DetectionRecord is one server-logged person-detection result. The client never mutates it.
type DetectionRecord struct {
	ID                    int64
	Timestamp             time.Time
	NumPeople             int
	ConfidenceScore       float64
	ProcessingTimeSeconds float64
	DetectedImagePath     string
	OriginalImagePath     string
}

// ResultPage is one page of detections in backend order plus the filtered total.
type ResultPage struct {
	Items []DetectionRecord
	Total int
}

// TotalPages derives the page count for the page's total.
func (p ResultPage) TotalPages() int {
	return TotalPages(p.Total)
}

// TotalPages returns ceil(total / PageSize); zero when total is not positive.
func TotalPages(total int) int {
	if total <= 0 {
		return 0
	}
	return (total + PageSize - 1) / PageSize
}

// Skip returns the list offset for a 1-based page.
func Skip(page int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * PageSize
}

// UploadResult is what the backend reports after processing an uploaded image.
// Detection is nil when the response carried only the image path.
type UploadResult struct {
	DetectedImagePath string
	Detection         *DetectionRecord
}
