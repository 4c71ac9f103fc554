package models

// CallTranscript is a recorded call as exported by the call-recording service.
type CallTranscript struct {
	CallID     string      `json:"callId,omitempty"`
	Transcript []Monologue `json:"transcript,omitempty"`
}

// Monologue is one uninterrupted speaker turn.
type Monologue struct {
	SpeakerID string     `json:"speakerId,omitempty"`
	Topic     string     `json:"topic,omitempty"`
	Sentences []Sentence `json:"sentences,omitempty"`
}

// Sentence is a single transcribed sentence.
type Sentence struct {
	Start int64  `json:"start,omitempty"`
	End   int64  `json:"end,omitempty"`
	Text  string `json:"text,omitempty"`
}

// TranscriptExport is the envelope holding several call transcripts.
type TranscriptExport struct {
	CallTranscripts []CallTranscript `json:"callTranscripts"`
}
