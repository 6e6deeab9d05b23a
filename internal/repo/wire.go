package repo

import (
	"errors"
	"fmt"
	"math"

	"github.com/persondetect/detect-console/internal/models"
	"github.com/persondetect/detect-console/internal/utils"
)

// detectionWire mirrors the backend JSON for one detection. Pointer fields let
// toRecord tell a missing value from a zero value.
type detectionWire struct {
	ID                *int64   `json:"id"`
	Timestamp         string   `json:"timestamp"`
	NumPeople         *int     `json:"num_people"`
	OriginalImagePath string   `json:"original_image_path"`
	DetectedImagePath string   `json:"detected_image_path"`
	ConfidenceScore   *float64 `json:"confidence_score"`
	ProcessingTime    *float64 `json:"processing_time"`
}

func (w detectionWire) toRecord() (models.DetectionRecord, error) {
	if w.ID == nil {
		return models.DetectionRecord{}, errors.New("detection missing id")
	}
	if w.NumPeople == nil || *w.NumPeople < 0 {
		return models.DetectionRecord{}, fmt.Errorf("detection %d: num_people must be a non-negative integer", *w.ID)
	}
	confidence := 0.0
	if w.ConfidenceScore != nil {
		confidence = *w.ConfidenceScore
	}
	if math.IsNaN(confidence) || confidence < 0 || confidence > 1 {
		return models.DetectionRecord{}, fmt.Errorf("detection %d: confidence_score %v outside [0,1]", *w.ID, confidence)
	}
	processing := 0.0
	if w.ProcessingTime != nil {
		processing = *w.ProcessingTime
	}
	if math.IsNaN(processing) || processing < 0 {
		return models.DetectionRecord{}, fmt.Errorf("detection %d: processing_time %v is negative", *w.ID, processing)
	}
	ts, err := utils.ParseTimestamp(w.Timestamp)
	if err != nil {
		return models.DetectionRecord{}, fmt.Errorf("detection %d: %w", *w.ID, err)
	}

	return models.DetectionRecord{
		ID:                    *w.ID,
		Timestamp:             ts,
		NumPeople:             *w.NumPeople,
		ConfidenceScore:       confidence,
		ProcessingTimeSeconds: processing,
		DetectedImagePath:     w.DetectedImagePath,
		OriginalImagePath:     w.OriginalImagePath,
	}, nil
}

func toResultPage(items []detectionWire, total *int) (models.ResultPage, error) {
	if total == nil {
		return models.ResultPage{}, errors.New("response missing total")
	}
	if *total < 0 {
		return models.ResultPage{}, fmt.Errorf("negative total %d", *total)
	}

	records := make([]models.DetectionRecord, 0, len(items))
	for _, item := range items {
		record, err := item.toRecord()
		if err != nil {
			return models.ResultPage{}, err
		}
		records = append(records, record)
	}
	return models.ResultPage{Items: records, Total: *total}, nil
}
