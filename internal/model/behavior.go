package model

// BehaviorSettings narrows which events, segmentation keys and user
// properties are recorded. A nil list means "not configured"; an empty
// non-nil list is a configured but empty list.
type BehaviorSettings struct {
	EventBlacklist             []string            `json:"eb" yaml:"eb"`
	EventWhitelist             []string            `json:"ew" yaml:"ew"`
	SegmentationBlacklist      []string            `json:"sb" yaml:"sb"`
	SegmentationWhitelist      []string            `json:"sw" yaml:"sw"`
	EventSegmentationBlacklist map[string][]string `json:"esb" yaml:"esb"`
	EventSegmentationWhitelist map[string][]string `json:"esw" yaml:"esw"`
	UserPropertyBlacklist      []string            `json:"upb" yaml:"upb"`
	UserPropertyWhitelist      []string            `json:"upw" yaml:"upw"`
	JourneyTriggerEvents       []string            `json:"jte" yaml:"jte"`
}
