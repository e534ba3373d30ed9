package services

import "regexp"

// maxPlayURIs is the upstream hard limit on track lists in a play request.
const maxPlayURIs = 50

// trackURIPattern matches a syntactically valid track URI. Anything else in
// an offset breaks playback entirely upstream, so the offset is dropped
// rather than sent.
var trackURIPattern = regexp.MustCompile(`^spotify:track:[0-9A-Za-z]+$`)

// PlayOffset points playback at a track inside a context.
type PlayOffset struct {
	URI string `json:"uri"`
}

// PlayBody is the body of a play request. Exactly one of ContextURI or URIs
// is ever populated; an empty body resumes playback in place.
type PlayBody struct {
	ContextURI string      `json:"context_uri,omitempty"`
	Offset     *PlayOffset `json:"offset,omitempty"`
	URIs       []string    `json:"uris,omitempty"`
}

// BuildPlayBody translates a play intent into Spotify's two mutually
// exclusive playback shapes.
//
// With a context (playlist or album), the body carries the context URI and,
// when the first URI is a valid track URI, an offset pointing at it;
// otherwise playback starts at the top of the context. Without a context,
// the body carries the track list, silently truncated to the upstream cap.
func BuildPlayBody(contextURI string, uris []string) PlayBody {
	if contextURI != "" {
		body := PlayBody{ContextURI: contextURI}
		if len(uris) > 0 && trackURIPattern.MatchString(uris[0]) {
			body.Offset = &PlayOffset{URI: uris[0]}
		}
		return body
	}

	if len(uris) > maxPlayURIs {
		uris = uris[:maxPlayURIs]
	}
	return PlayBody{URIs: uris}
}
