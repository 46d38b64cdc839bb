package runner

import (
	"errors"
	"fmt"
	"time"

	"chatq/internal/scheduler"
	"chatq/internal/session"
)

// Config is the workload plus everything needed to run it.
type Config struct {
	NumUsers        int     `json:"num_users"`
	SystemPromptLen int     `json:"shared_system_prompt"`
	UserInfoLen     int     `json:"user_history_prompt"`
	AnswerLen       int     `json:"answer_len"`
	NumRounds       int     `json:"num_rounds"`
	QPS             float64 `json:"qps"`

	Model   string `json:"model"`
	BaseURL string `json:"base_url"`
	APIKey  string `json:"-"`

	// Duration bounds the run. Zero runs until interrupted.
	Duration    time.Duration `json:"duration"`
	LogInterval time.Duration `json:"log_interval"`
	Output      string        `json:"output"`

	InitUserID        int  `json:"init_user_id"`
	RequestWithUserID bool `json:"request_with_user_id"`

	AppsFile    string `json:"apps_file"`
	UsersPerApp int    `json:"users_per_app"`
	ShareGPT    string `json:"sharegpt"`

	Warmup         bool          `json:"warmup"`
	RequestTimeout time.Duration `json:"request_timeout"`
	DrainTimeout   time.Duration `json:"drain_timeout"`
	FailurePolicy  string        `json:"failure_policy"`
	Seed           int64         `json:"seed"`
}

func DefaultConfig() Config {
	return Config{
		NumUsers:          10,
		SystemPromptLen:   1000,
		UserInfoLen:       2000,
		AnswerLen:         100,
		NumRounds:         10,
		QPS:               0.5,
		Model:             "mistralai/Mistral-7B-Instruct-v0.2",
		BaseURL:           "http://localhost:8000",
		LogInterval:       30 * time.Second,
		Output:            "summary.csv",
		RequestWithUserID: true,
		UsersPerApp:       2,
		Warmup:            true,
		RequestTimeout:    5 * time.Minute,
		DrainTimeout:      5 * time.Minute,
		FailurePolicy:     string(session.PolicyAbandon),
	}
}

// Validate rejects workloads the scheduler cannot pace.
func (c Config) Validate() error {
	var errs []error
	if c.NumUsers <= 0 {
		errs = append(errs, fmt.Errorf("num-users must be positive, got %d", c.NumUsers))
	}
	if c.NumRounds <= 0 {
		errs = append(errs, fmt.Errorf("num-rounds must be positive, got %d", c.NumRounds))
	}
	if c.QPS <= 0 {
		errs = append(errs, fmt.Errorf("qps must be positive, got %g", c.QPS))
	}
	if c.AnswerLen <= 0 {
		errs = append(errs, fmt.Errorf("answer-len must be positive, got %d", c.AnswerLen))
	}
	if c.BaseURL == "" {
		errs = append(errs, errors.New("base-url is required"))
	}
	if c.AppsFile != "" && c.UsersPerApp <= 0 {
		errs = append(errs, fmt.Errorf("users-per-app must be positive, got %d", c.UsersPerApp))
	}
	if c.LogInterval <= 0 {
		errs = append(errs, fmt.Errorf("log-interval must be positive, got %s", c.LogInterval))
	}
	if c.Duration < 0 {
		errs = append(errs, fmt.Errorf("time must not be negative, got %s", c.Duration))
	}
	if _, err := session.ParseFailurePolicy(c.FailurePolicy); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Workload derives the scheduler configuration.
func (c Config) Workload() scheduler.Config {
	policy, _ := session.ParseFailurePolicy(c.FailurePolicy)
	return scheduler.Config{
		NumUsers:        c.NumUsers,
		QPS:             c.QPS,
		NumRounds:       c.NumRounds,
		AnswerLen:       c.AnswerLen,
		SystemPromptLen: c.SystemPromptLen,
		UserInfoLen:     c.UserInfoLen,
		InitUserID:      c.InitUserID,
		SendUserID:      c.RequestWithUserID,
		FailurePolicy:   policy,
		Seed:            c.Seed,
	}
}
