package interaction

import (
	"fmt"
	"strings"
	"sync"
)

func init() {
	Register(NewRepoExploration())
}

const (
	// maxReviews caps how many times a trajectory is sent back with
	// feedback before the answer is accepted as-is.
	maxReviews = 5

	// completenessTarget is the completeness score at which an answer
	// is accepted early.
	completenessTarget = 0.8

	// minAnalysisLength is the answer length below which the analysis
	// counts as underdeveloped.
	minAnalysisLength = 200

	// componentTarget is the per-component score treated as passing
	// when averaging completeness.
	componentTarget = 0.67
)

type exploreSession struct {
	groundTruth string
	reviews     int
	usedTodo    bool
	usedBash    bool
	usedRead    bool
}

// RepoExploration guides repository-exploration rollouts: it tracks
// which tools the agent has exercised, scores the analysis vocabulary
// against the expected focus, and feeds concrete improvement hints
// back until the answer is complete enough or the review cap is hit.
type RepoExploration struct {
	mu       sync.Mutex
	sessions map[string]*exploreSession
}

// NewRepoExploration creates an empty guide.
func NewRepoExploration() *RepoExploration {
	return &RepoExploration{sessions: make(map[string]*exploreSession)}
}

func (r *RepoExploration) Name() string { return "repo_exploration" }

// Begin opens per-trajectory review state.
func (r *RepoExploration) Begin(sessionID, groundTruth string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sessionID] = &exploreSession{groundTruth: groundTruth}
}

// End drops the session state.
func (r *RepoExploration) End(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
}

func (r *RepoExploration) Review(sessionID, answer, transcript string) Verdict {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := r.sessions[sessionID]
	if st == nil {
		st = &exploreSession{}
		r.sessions[sessionID] = st
	}
	st.reviews++

	lowerTranscript := strings.ToLower(transcript)
	st.usedTodo = st.usedTodo || containsAny(lowerTranscript, "todo", "task", "plan", "step")
	st.usedBash = st.usedBash || containsAny(lowerTranscript, "ls", "bash", "command", "execute")
	st.usedRead = st.usedRead || containsAny(lowerTranscript, "read", "file", "examine", "content")

	toolScore := 0.0
	for _, used := range []bool{st.usedTodo, st.usedBash, st.usedRead} {
		if used {
			toolScore += 1.0 / 3.0
		}
	}
	quality := analysisQuality(st.groundTruth, strings.ToLower(answer))

	completeness := 0.0
	for _, pass := range []bool{
		len(answer) >= minAnalysisLength,
		toolScore >= componentTarget,
		quality >= componentTarget,
	} {
		if pass {
			completeness += 1.0 / 3.0
		}
	}

	if completeness >= completenessTarget {
		return Verdict{Accept: true, Feedback: "Excellent analysis! Your exploration covered the repository thoroughly."}
	}
	if st.reviews >= maxReviews {
		return Verdict{Accept: true, Feedback: fmt.Sprintf("Analysis complete after %d reviews.", st.reviews)}
	}

	var hints []string
	if !st.usedTodo {
		hints = append(hints, "• Use the todo tool to create a structured exploration plan")
	}
	if !st.usedBash {
		hints = append(hints, "• Use bash to explore directory structures and file listings")
	}
	if !st.usedRead {
		hints = append(hints, "• Use read_file to examine key implementation files")
	}
	if len(answer) < minAnalysisLength {
		hints = append(hints, "• Provide more detailed analysis and insights")
	}
	if quality < componentTarget && st.groundTruth != "" {
		hints = append(hints, "• Focus on the key aspects for "+strings.ReplaceAll(st.groundTruth, "_", " "))
	}

	feedback := "Good progress! Here's how to improve your analysis:\n" + strings.Join(hints, "\n")
	return Verdict{Feedback: feedback}
}

// analysisQuality scores the answer vocabulary against keyword groups
// chosen per ground-truth focus, capped at 1.0.
func analysisQuality(groundTruth, lower string) float64 {
	score := 0.0
	add := func(points float64, words ...string) {
		if containsAny(lower, words...) {
			score += points
		}
	}

	switch groundTruth {
	case "repository_overview_analysis":
		add(0.3, "structure", "architecture", "organize", "framework")
		add(0.3, "purpose", "goal", "function", "system")
		add(0.2, "component", "module", "tool", "directory")
		add(0.2, "reinforcement", "learning", "training")
	case "tools_architecture_analysis":
		add(0.4, "basetool", "base tool", "inherit", "abstract")
		add(0.3, "method", "async", "execute", "create")
		add(0.3, "schema", "config", "register", "load")
	case "configuration_system_analysis":
		add(0.4, "yaml", "config", "parameter", "setting")
		add(0.3, "example", "template", "sample")
		add(0.3, "model", "batch", "learning", "optimizer")
	default:
		add(0.5, "analyze", "understand", "examine", "investigate")
		add(0.3, "pattern", "structure", "design", "implement")
		add(0.3, "conclusion", "summary", "insight", "finding")
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}

func containsAny(s string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
