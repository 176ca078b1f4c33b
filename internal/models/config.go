package models

// TruncationPolicy controls what happens to prompts that exceed the
// prompt token budget during batch assembly.
type TruncationPolicy string

const (
	// TruncationError rejects the offending prompt before rollout begins.
	TruncationError TruncationPolicy = "error"
	// TruncationLeft drops tokens from the start of the prompt.
	TruncationLeft TruncationPolicy = "left"
	// TruncationRight drops tokens from the end of the prompt.
	TruncationRight TruncationPolicy = "right"
)

// RolloutMode selects how trajectory work is interleaved.
type RolloutMode string

const (
	// RolloutSync expands prompt groups one at a time.
	RolloutSync RolloutMode = "sync"
	// RolloutAsync interleaves all groups' trajectories so generation
	// requests can be batched by the model runtime.
	RolloutAsync RolloutMode = "async"
)

// TrainConfig is the parsed train.yaml configuration. It is built once
// at startup and immutable for the duration of the run.
type TrainConfig struct {
	Name      *string `yaml:"name,omitempty" json:"name,omitempty"`
	RunsDir   string  `yaml:"runs_dir" json:"runs_dir"`
	LogLevel  string  `yaml:"log_level,omitempty" json:"log_level,omitempty"`
	ToolsPath string  `yaml:"tools_path" json:"tools_path"`

	Data      DataConfig      `yaml:"data" json:"data"`
	Rollout   RolloutConfig   `yaml:"rollout" json:"rollout"`
	Algorithm AlgorithmConfig `yaml:"algorithm" json:"algorithm"`
	Trainer   TrainerConfig   `yaml:"trainer" json:"trainer"`
	Runtime   RuntimeConfig   `yaml:"runtime" json:"runtime"`
	Reward    RewardConfig    `yaml:"reward" json:"reward"`
	Sandbox   SandboxConfig   `yaml:"sandbox" json:"sandbox"`
}

type DataConfig struct {
	TrainPath         string           `yaml:"train_path" json:"train_path"`
	ValPath           string           `yaml:"val_path,omitempty" json:"val_path,omitempty"`
	TrainBatchSize    int              `yaml:"train_batch_size" json:"train_batch_size"`
	MaxPromptTokens   int              `yaml:"max_prompt_tokens" json:"max_prompt_tokens"`
	MaxResponseTokens int              `yaml:"max_response_tokens" json:"max_response_tokens"`
	Truncation        TruncationPolicy `yaml:"truncation" json:"truncation"`
}

type RolloutConfig struct {
	N             int         `yaml:"n" json:"n"`
	Mode          RolloutMode `yaml:"mode" json:"mode"`
	MaxTurns      int         `yaml:"max_turns" json:"max_turns"`
	MaxConcurrent int         `yaml:"max_concurrent" json:"max_concurrent"`
	Temperature   float64     `yaml:"temperature" json:"temperature"`
	TopP          float64     `yaml:"top_p" json:"top_p"`
	// Interaction names a registered guide that reviews candidate
	// final answers during training rollouts; empty disables it.
	Interaction string `yaml:"interaction,omitempty" json:"interaction,omitempty"`
}

type AlgorithmConfig struct {
	Estimator     string  `yaml:"estimator" json:"estimator"`
	UseKLInReward bool    `yaml:"use_kl_in_reward" json:"use_kl_in_reward"`
	KLLoss        bool    `yaml:"kl_loss" json:"kl_loss"`
	KLLossCoef    float64 `yaml:"kl_loss_coef" json:"kl_loss_coef"`
	KLEstimator   string  `yaml:"kl_estimator" json:"kl_estimator"`
	EntropyCoeff  float64 `yaml:"entropy_coeff" json:"entropy_coeff"`
}

type TrainerConfig struct {
	TotalSteps     int `yaml:"total_steps" json:"total_steps"`
	MiniBatchSize  int `yaml:"mini_batch_size" json:"mini_batch_size"`
	MicroBatchSize int `yaml:"micro_batch_size" json:"micro_batch_size"`
	// TestFreq triggers evaluation at steps 0, f, 2f, ...; non-positive
	// disables evaluation.
	TestFreq int `yaml:"test_freq" json:"test_freq"`
	// SaveFreq triggers checkpoint requests on the same cadence;
	// non-positive disables saving entirely.
	SaveFreq      int `yaml:"save_freq" json:"save_freq"`
	CriticWarmup  int `yaml:"critic_warmup" json:"critic_warmup"`
	RefConcurrent int `yaml:"ref_concurrent" json:"ref_concurrent"`
}

type RuntimeConfig struct {
	BaseURL           string  `yaml:"base_url" json:"base_url"`
	RequestTimeoutSec float64 `yaml:"request_timeout_sec" json:"request_timeout_sec"`
}

type RewardConfig struct {
	Name string `yaml:"name" json:"name"`
}

type SandboxConfig struct {
	Provider     string   `yaml:"provider" json:"provider"`
	Image        string   `yaml:"image,omitempty" json:"image,omitempty"`
	Workspace    string   `yaml:"workspace" json:"workspace"`
	RegistryPath string   `yaml:"registry_path" json:"registry_path"`
	CPUs         int      `yaml:"cpus" json:"cpus"`
	Memory       string   `yaml:"memory,omitempty" json:"memory,omitempty"`
	AppName      string   `yaml:"app_name,omitempty" json:"app_name,omitempty"`
	Regions      []string `yaml:"regions,omitempty" json:"regions,omitempty"`
	Verbose      bool     `yaml:"verbose,omitempty" json:"verbose,omitempty"`
}

// GroupSize returns the number of trajectories sampled per prompt.
func (c *TrainConfig) GroupSize() int {
	return c.Rollout.N
}

// TrajectoriesPerStep returns the total trajectory count of one step.
func (c *TrainConfig) TrajectoriesPerStep() int {
	return c.Data.TrainBatchSize * c.Rollout.N
}

// Budget returns the per-trajectory rollout budget.
func (c *TrainConfig) Budget() Budget {
	return Budget{
		MaxPromptTokens:   c.Data.MaxPromptTokens,
		MaxResponseTokens: c.Data.MaxResponseTokens,
		MaxTurns:          c.Rollout.MaxTurns,
	}
}
