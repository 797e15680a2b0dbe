package settings

// Document is the YAML representation of pricing overrides. Money values are major-unit
// decimal strings ("300.00") and rates are percentages ("9.975").
type Document struct {
	Currency    string           `yaml:"currency"`
	VolumeTiers []TierDocument   `yaml:"volumeTiers"`
	Shipping    ShippingDocument `yaml:"shipping"`
	Tax         TaxDocument      `yaml:"tax"`
}

type TierDocument struct {
	Threshold  string `yaml:"threshold"`
	Percentage string `yaml:"percentage"`
}

type ShippingDocument struct {
	FreeThreshold           string                     `yaml:"freeThreshold"`
	FlatRate                string                     `yaml:"flatRate"`
	ReducedRates            map[string]string          `yaml:"reducedRates"`
	InternationalBase       string                     `yaml:"internationalBase"`
	InternationalSurcharge  string                     `yaml:"internationalSurcharge"`
	HeavyOrderSurcharge     string                     `yaml:"heavyOrderSurcharge"`
	HeavyOrderItemThreshold int                        `yaml:"heavyOrderItemThreshold"`
	DefaultWindow           *WindowDocument            `yaml:"defaultWindow"`
	InternationalWindow     *WindowDocument            `yaml:"internationalWindow"`
	Windows                 map[string]*WindowDocument `yaml:"windows"`
}

type WindowDocument struct {
	MinDays int `yaml:"minDays"`
	MaxDays int `yaml:"maxDays"`
}

type TaxDocument struct {
	Default   *TaxRuleDocument           `yaml:"default"`
	Provinces map[string]TaxRuleDocument `yaml:"provinces"`
}

type TaxRuleDocument struct {
	Label      string            `yaml:"label"`
	Components map[string]string `yaml:"components"`
}
