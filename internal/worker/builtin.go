package worker

import (
	"fmt"
	"time"

	"wordloom/internal/types"
)

// BuiltinWorkers returns the eight builtin writing workers wired to gen.
func BuiltinWorkers(gen types.GenerationBackend) []types.Worker {
	return []types.Worker{
		NewContentWriter(gen),
		NewStyleEditor(gen),
		NewGrammarChecker(gen),
		NewResearcher(gen),
		NewStructureArchitect(gen),
		NewCreativeEnhancer(gen),
		NewQAReviewer(gen),
		NewGeneralist(gen),
	}
}

// NewContentWriter produces original prose from a writing brief.
func NewContentWriter(gen types.GenerationBackend) *BaseWorker {
	return &BaseWorker{
		meta: types.WorkerMetadata{
			ID:   types.WorkerContentWriter,
			Name: "Content Writer",
			Keywords: []string{
				"write", "article", "draft", "blog", "post", "essay", "compose",
				"content", "create", "paragraph", "chapter", "summarize", "report",
			},
			TaskKinds:     []types.TaskKind{types.TaskKindCreate, types.TaskKindSummarize, types.TaskKindGeneric},
			MaxInputChars: 60000,
			Delegable:     false,
		},
		caps: types.WorkerCapabilities{
			KindConfidence: map[types.TaskKind]float64{
				types.TaskKindCreate:    0.9,
				types.TaskKindSummarize: 0.8,
				types.TaskKindGeneric:   0.7,
			},
			Audiences:          []string{"general", "professional", "academic"},
			Languages:          []string{"en"},
			CollaborationReady: true,
		},
		gen:         gen,
		temperature: 0.7,
		timeout:     DefaultTimeout,
		stats:       NewPerfStats(),
		buildPrompt: func(in types.TaskInput) (string, string) {
			system := fmt.Sprintf(
				"You are a professional content writer. Produce a complete %s for a %s audience. "+
					"Output only the finished text, no commentary.",
				orDefault(string(in.ContentType), "article"), orDefault(in.Audience, "general"))
			user := in.Description
			if in.Content != "" {
				user = fmt.Sprintf("%s\n\nRequest:\n%s", in.Description, in.Content)
			}
			if in.Context != "" {
				user += "\n\nAdditional context:\n" + in.Context
			}
			return system, user
		},
	}
}

// NewStyleEditor refines tone and flow of upstream content.
func NewStyleEditor(gen types.GenerationBackend) *BaseWorker {
	return &BaseWorker{
		meta: types.WorkerMetadata{
			ID:   types.WorkerStyleEditor,
			Name: "Style Editor",
			Keywords: []string{
				"style", "tone", "voice", "polish", "refine", "rephrase",
				"improve", "flow", "readability", "rewrite",
			},
			TaskKinds:     []types.TaskKind{types.TaskKindEdit},
			MaxInputChars: 80000,
			Delegable:     true,
		},
		caps:        collaborativeCaps(types.TaskKindEdit, 0.85),
		gen:         gen,
		temperature: 0.5,
		timeout:     DefaultTimeout,
		stats:       NewPerfStats(),
		buildPrompt: func(in types.TaskInput) (string, string) {
			system := "You are a style editor. Improve tone, flow, and word choice while preserving meaning."
			if in.Options.PreserveVoice {
				system += " Preserve the author's voice; make minimal stylistic changes."
			}
			return system, fmt.Sprintf("Task: %s\n\nText to edit:\n%s", in.Description, upstreamBlock(in))
		},
	}
}

// NewGrammarChecker corrects mechanics without rewriting.
func NewGrammarChecker(gen types.GenerationBackend) *BaseWorker {
	return &BaseWorker{
		meta: types.WorkerMetadata{
			ID:   types.WorkerGrammarChecker,
			Name: "Grammar Checker",
			Keywords: []string{
				"grammar", "spelling", "punctuation", "typo", "proofread",
				"correct", "fix", "errors",
			},
			TaskKinds:     []types.TaskKind{types.TaskKindEdit, types.TaskKindReview},
			MaxInputChars: 100000,
			Delegable:     true,
		},
		caps:        collaborativeCaps(types.TaskKindEdit, 0.9),
		gen:         gen,
		temperature: 0.2,
		timeout:     DefaultTimeout,
		stats:       NewPerfStats(),
		buildPrompt: func(in types.TaskInput) (string, string) {
			level := in.Options.CorrectionLevel
			if level == "" {
				level = types.CorrectionModerate
			}
			system := fmt.Sprintf(
				"You are a grammar checker. Correct grammar, spelling, and punctuation with a %s touch. "+
					"Do not change meaning or structure. Output the corrected text only.", level)
			return system, upstreamBlock(in)
		},
	}
}

// NewResearcher gathers factual grounding for a topic.
func NewResearcher(gen types.GenerationBackend) *BaseWorker {
	return &BaseWorker{
		meta: types.WorkerMetadata{
			ID:   types.WorkerResearch,
			Name: "Research Worker",
			Keywords: []string{
				"research", "source", "sources", "cite", "citation", "evidence",
				"data", "study", "studies", "latest", "findings", "statistics",
			},
			TaskKinds:     []types.TaskKind{types.TaskKindResearch},
			MaxInputChars: 40000,
			Delegable:     true,
		},
		caps:        collaborativeCaps(types.TaskKindResearch, 0.85),
		gen:         gen,
		temperature: 0.3,
		timeout:     45 * time.Second, // research prompts run longer
		stats:       NewPerfStats(),
		buildPrompt: func(in types.TaskInput) (string, string) {
			system := "You are a research assistant. Produce key facts, figures, and source-worthy " +
				"claims on the topic. Flag anything uncertain."
			return system, fmt.Sprintf("Topic: %s\n\n%s", in.Description, in.Content)
		},
	}
}

// NewStructureArchitect reorganizes content into a coherent outline.
func NewStructureArchitect(gen types.GenerationBackend) *BaseWorker {
	return &BaseWorker{
		meta: types.WorkerMetadata{
			ID:   types.WorkerStructureArchitect,
			Name: "Structure Architect",
			Keywords: []string{
				"structure", "outline", "organize", "sections", "headings",
				"reorganize", "chapters", "layout",
			},
			TaskKinds:     []types.TaskKind{types.TaskKindEdit, types.TaskKindCreate},
			MaxInputChars: 80000,
			Delegable:     true,
		},
		caps:        collaborativeCaps(types.TaskKindEdit, 0.8),
		gen:         gen,
		temperature: 0.4,
		timeout:     DefaultTimeout,
		stats:       NewPerfStats(),
		buildPrompt: func(in types.TaskInput) (string, string) {
			system := "You are a structural editor. Reorganize the text with clear sections and " +
				"headings appropriate for the content type. Keep all substantive content."
			return system, fmt.Sprintf("Task: %s\n\nText:\n%s", in.Description, upstreamBlock(in))
		},
	}
}

// NewCreativeEnhancer adds vividness and narrative energy.
func NewCreativeEnhancer(gen types.GenerationBackend) *BaseWorker {
	return &BaseWorker{
		meta: types.WorkerMetadata{
			ID:   types.WorkerCreativeEnhancer,
			Name: "Creative Enhancer",
			Keywords: []string{
				"creative", "imaginative", "metaphor", "vivid", "storytelling",
				"narrative", "engaging", "story",
			},
			TaskKinds:     []types.TaskKind{types.TaskKindEdit, types.TaskKindCreate},
			MaxInputChars: 60000,
			Delegable:     true,
		},
		caps:        collaborativeCaps(types.TaskKindEdit, 0.75),
		gen:         gen,
		temperature: 0.9,
		timeout:     DefaultTimeout,
		stats:       NewPerfStats(),
		buildPrompt: func(in types.TaskInput) (string, string) {
			system := "You are a creative editor. Heighten imagery, rhythm, and engagement while " +
				"keeping facts and structure intact."
			return system, upstreamBlock(in)
		},
	}
}

// NewQAReviewer is the final-pass reviewer dispatched for risky workflows.
func NewQAReviewer(gen types.GenerationBackend) *BaseWorker {
	return &BaseWorker{
		meta: types.WorkerMetadata{
			ID:   types.WorkerQAReviewer,
			Name: "QA Reviewer",
			Keywords: []string{
				"review", "quality", "check", "assess", "evaluate", "audit", "verify",
			},
			TaskKinds:     []types.TaskKind{types.TaskKindReview},
			MaxInputChars: 100000,
			Delegable:     true,
		},
		caps:        collaborativeCaps(types.TaskKindReview, 0.85),
		gen:         gen,
		temperature: 0.2,
		timeout:     DefaultTimeout,
		stats:       NewPerfStats(),
		buildPrompt: func(in types.TaskInput) (string, string) {
			system := "You are a quality reviewer. Check the text for factual consistency, tone " +
				"appropriateness, and completeness. Apply only corrections that are clearly needed " +
				"and output the final text."
			return system, upstreamBlock(in)
		},
	}
}

// NewGeneralist is the fallback worker when nothing else matches.
func NewGeneralist(gen types.GenerationBackend) *BaseWorker {
	return &BaseWorker{
		meta: types.WorkerMetadata{
			ID:            types.WorkerGeneralist,
			Name:          "Generalist",
			Keywords:      []string{"help", "assist", "general"},
			TaskKinds:     []types.TaskKind{types.TaskKindGeneric},
			MaxInputChars: 60000,
			Delegable:     false,
		},
		caps: types.WorkerCapabilities{
			KindConfidence:     map[types.TaskKind]float64{types.TaskKindGeneric: 0.6},
			CollaborationReady: true,
		},
		gen:         gen,
		temperature: 0.6,
		timeout:     DefaultTimeout,
		stats:       NewPerfStats(),
		buildPrompt: func(in types.TaskInput) (string, string) {
			system := "You are a capable writing assistant. Complete the task as well as you can. " +
				"Output only the finished text."
			user := in.Description
			if in.Content != "" {
				user += "\n\n" + in.Content
			}
			return system, user
		},
	}
}

func collaborativeCaps(kind types.TaskKind, conf float64) types.WorkerCapabilities {
	return types.WorkerCapabilities{
		KindConfidence:     map[types.TaskKind]float64{kind: conf},
		Audiences:          []string{"general", "professional"},
		Languages:          []string{"en"},
		CollaborationReady: true,
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
