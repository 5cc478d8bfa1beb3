package collect

import (
	"context"
	"time"

	"github.com/TobiSchelling/cropscope/internal/country"
)

// DefaultImageURL is the reference image returned for every country.
const DefaultImageURL = "https://eoimages.gsfc.nasa.gov/images/imagerecords/57000/57723/globe_east_540.jpg"

// DefaultResolution labels the reference image.
const DefaultResolution = "10m (Sentinel-2 reference)"

// ImagerySnapshot describes satellite imagery metadata for a country.
type ImagerySnapshot struct {
	ImageURL    string              `json:"image_url"`
	CaptureDate string              `json:"capture_date"`
	Country     string              `json:"country"`
	Resolution  string              `json:"resolution"`
	BoundingBox country.BoundingBox `json:"bounding_box"`
}

// ImageryStub returns fixed imagery metadata for countries with a known
// bounding box. It performs no network calls and fetches no live imagery.
type ImageryStub struct {
	imageURL   string
	resolution string
	now        func() time.Time
}

// NewImageryStub creates the imagery adapter. Empty arguments use defaults.
func NewImageryStub(imageURL, resolution string) *ImageryStub {
	if imageURL == "" {
		imageURL = DefaultImageURL
	}
	if resolution == "" {
		resolution = DefaultResolution
	}
	return &ImageryStub{imageURL: imageURL, resolution: resolution, now: time.Now}
}

// WithClock replaces the clock used for the capture date.
func (s *ImageryStub) WithClock(now func() time.Time) *ImageryStub {
	s.now = now
	return s
}

func (s *ImageryStub) Name() ProviderName { return Imagery }

func (s *ImageryStub) Fetch(_ context.Context, req Request) Result[ImagerySnapshot] {
	if req.BoundingBox == nil {
		return Unavailable[ImagerySnapshot](ReasonNoIdentifier)
	}
	return Success(ImagerySnapshot{
		ImageURL:    s.imageURL,
		CaptureDate: s.now().Format("2006-01-02"),
		Country:     req.BoxCountry,
		Resolution:  s.resolution,
		BoundingBox: *req.BoundingBox,
	})
}
