package assistant

import (
	"fmt"
	"net/http"
)

// Error is a failure reported to the caller with an HTTP status.
type Error struct {
	Status  int
	Message string
	Details string
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Details)
	}
	return e.Message
}

func badRequest(message string) *Error {
	return &Error{Status: http.StatusBadRequest, Message: message}
}

func internal(message, details string) *Error {
	return &Error{Status: http.StatusInternalServerError, Message: message, Details: details}
}

// Input is a voice question about a scan.
type Input struct {
	Audio           []byte
	ContentType     string
	Vulnerabilities string
}

// Response defines the JSON structure returned for a voice question.
type Response struct {
	Transcription       string `json:"transcription"`
	ResponseText        string `json:"response_text"`
	ResponseAudioBase64 string `json:"response_audio_base64"`
}

type listenResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string `json:"transcript"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

func (r *listenResponse) transcript() string {
	if len(r.Results.Channels) == 0 || len(r.Results.Channels[0].Alternatives) == 0 {
		return ""
	}
	return r.Results.Channels[0].Alternatives[0].Transcript
}
