package chat

// Message is a Chat API message payload: formatted text plus optional
// cardsV2 attachments. Only the fields the digest renderer uses are modeled.
type Message struct {
	FormattedText string   `json:"formattedText,omitempty"`
	CardsV2       []CardV2 `json:"cardsV2,omitempty"`
}

type CardV2 struct {
	CardID string `json:"cardId"`
	Card   Card   `json:"card"`
}

type Card struct {
	Header   *CardHeader `json:"header,omitempty"`
	Sections []Section   `json:"sections,omitempty"`
}

type CardHeader struct {
	Title    string `json:"title"`
	Subtitle string `json:"subtitle,omitempty"`
}

type Section struct {
	Collapsible bool     `json:"collapsible,omitempty"`
	Widgets     []Widget `json:"widgets"`
}

type Widget struct {
	DecoratedText *DecoratedText `json:"decoratedText,omitempty"`
}

type DecoratedText struct {
	TopLabel  string `json:"topLabel,omitempty"`
	Text      string `json:"text"`
	StartIcon *Icon  `json:"startIcon,omitempty"`
}

type Icon struct {
	KnownIcon string `json:"knownIcon"`
}
