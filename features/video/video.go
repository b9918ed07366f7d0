package video

import "errors"

var ErrInvalidVideo = errors.New("video requires a title and a url")

type Video struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	URL         string  `json:"url"`
	Description string  `json:"description,omitempty"`
	Score       float32 `json:"score,omitempty"`
}
