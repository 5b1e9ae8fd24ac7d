package filesystem

// yamlFile is the YAML deserialization target for configuration files.
type yamlFile struct {
	BasePath  string         `yaml:"basePath"`
	Resources []yamlResource `yaml:"resources"`
}

type yamlResource struct {
	ID          string          `yaml:"id"`
	Method      string          `yaml:"method"`
	Path        string          `yaml:"path"`
	Regex       string          `yaml:"regex"`
	Conditions  []yamlCondition `yaml:"conditions,omitempty"`
	Capture     []yamlCapture   `yaml:"capture,omitempty"`
	Script      string          `yaml:"script,omitempty"`
	Interceptor bool            `yaml:"interceptor"`
	Continue    *bool           `yaml:"continue,omitempty"`
	RateLimit   *yamlRateLimit  `yaml:"rateLimit,omitempty"`
	Response    yamlResponse    `yaml:"response"`
}

// yamlCondition names its subject with exactly one of the source keys.
type yamlCondition struct {
	Header     *string `yaml:"header,omitempty"`
	Query      *string `yaml:"query,omitempty"`
	Path       *string `yaml:"path,omitempty"`
	Form       *string `yaml:"form,omitempty"`
	Body       *string `yaml:"body,omitempty"`
	Expression *string `yaml:"expression,omitempty"`
	Operator   string  `yaml:"operator,omitempty"`
	Value      *string `yaml:"value,omitempty"`
}

type yamlCapture struct {
	Name  string          `yaml:"name"`
	Store string          `yaml:"store,omitempty"`
	Key   yamlValueSource `yaml:"key,omitempty"`
	Value yamlValueSource `yaml:"value"`
	Phase string          `yaml:"phase,omitempty"`
}

type yamlValueSource struct {
	Const      *string `yaml:"const,omitempty"`
	Expression string  `yaml:"expression,omitempty"`
	JSONPath   string  `yaml:"jsonPath,omitempty"`
	XPath      string  `yaml:"xPath,omitempty"`
}

type yamlResponse struct {
	StatusCode  int               `yaml:"statusCode"`
	Content     *string           `yaml:"content,omitempty"`
	File        string            `yaml:"file,omitempty"`
	Headers     map[string]string `yaml:"headers,omitempty"`
	Template    *bool             `yaml:"template,omitempty"`
	Engine      string            `yaml:"engine,omitempty"`
	Delay       *yamlDelay        `yaml:"delay,omitempty"`
	FailureType string            `yaml:"failureType,omitempty"`
}

type yamlDelay struct {
	ExactMs int `yaml:"exactMs,omitempty"`
	MinMs   int `yaml:"minMs,omitempty"`
	MaxMs   int `yaml:"maxMs,omitempty"`
}

type yamlRateLimit struct {
	Rate  float64 `yaml:"rate"`
	Burst int     `yaml:"burst"`
	Key   string  `yaml:"key,omitempty"`
}
