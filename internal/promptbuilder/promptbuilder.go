// Package promptbuilder builds the fixed, per-phase prompts driving the
// spec pipeline's six phases; the judge/improve and PRD prompts are built
// in their own packages. Every
// function here is a pure string transform over a Context value — no
// inheritance hierarchy, following the teacher's buildUserMessage-style
// template functions.
package promptbuilder

import "strings"

// Context carries everything a phase prompt might need; phases use only
// the fields relevant to them.
type Context struct {
	FeatureTitle         string
	FeatureDescription   string
	FeatureTypeID        *int64
	ClientName           string
	RepoName             string
	TechStack            string
	ExistingConstitution string
	ExistingSpec         string
	ExistingPlan         string
	ClarificationAnswers []ClarificationAnswer
	RelevantMemories     string

	// CosmeticFeatureTypeID, when non-nil and equal to FeatureTypeID,
	// triggers the UI-testing standards addendum in the constitution
	// prompt.
	CosmeticFeatureTypeID *int64
}

type ClarificationAnswer struct {
	Question string
	Response string
}

func (c Context) isCosmetic() bool {
	return c.FeatureTypeID != nil && c.CosmeticFeatureTypeID != nil && *c.FeatureTypeID == *c.CosmeticFeatureTypeID
}

// Constitution builds phase 1's prompt.
func Constitution(c Context) string {
	var b strings.Builder
	b.WriteString("Phase 1/6: constitution.\n\n")
	b.WriteString("Client: " + c.ClientName + "\nRepository: " + c.RepoName + "\n\n")
	b.WriteString("Produce a project constitution for the feature \"" + c.FeatureTitle + "\".\n")
	if c.FeatureDescription != "" {
		b.WriteString("Description: " + c.FeatureDescription + "\n")
	}
	b.WriteString("\nRequired output keys: constitution (markdown), techStack, keyPatterns[].\n")
	if c.isCosmetic() {
		b.WriteString("\nThis is a cosmetic/UI feature: include a UI-testing standards section ")
		b.WriteString("and instruct inclusion of a headless-browser e2e test scaffold.\n")
	}
	return b.String()
}

// Specify builds phase 2's prompt.
func Specify(c Context) string {
	var b strings.Builder
	b.WriteString("Phase 2/6: specify.\n\n")
	writeIdentity(&b, c)
	if c.ExistingConstitution != "" {
		b.WriteString("\nConstitution:\n" + c.ExistingConstitution + "\n")
	}
	b.WriteString("\nFeature: " + c.FeatureTitle + "\n")
	if c.FeatureDescription != "" {
		b.WriteString(c.FeatureDescription + "\n")
	}
	b.WriteString("\nRequired output keys: spec {overview, requirements[{id,description,priority}], ")
	b.WriteString("acceptanceCriteria[{id,requirement,criteria}], outOfScope[], edgeCases[]}.\n")
	return b.String()
}

// Clarify builds phase 3's prompt.
func Clarify(c Context) string {
	var b strings.Builder
	b.WriteString("Phase 3/6: clarify.\n\n")
	writeIdentity(&b, c)
	if c.ExistingSpec != "" {
		b.WriteString("\nSpec:\n" + c.ExistingSpec + "\n")
	}
	b.WriteString("\nRaise every question whose answer would materially change the plan.\n")
	b.WriteString("Required output keys: clarifications[{id, category, question, context, suggestedDefault?}], ")
	b.WriteString("assumptions[], risksIfUnclarified[].\n")
	return b.String()
}

// Plan builds phase 4's prompt.
func Plan(c Context) string {
	var b strings.Builder
	b.WriteString("Phase 4/6: plan.\n\n")
	writeIdentity(&b, c)
	if c.ExistingSpec != "" {
		b.WriteString("\nSpec:\n" + c.ExistingSpec + "\n")
	}
	writeClarifications(&b, c.ClarificationAnswers)
	if c.TechStack != "" {
		b.WriteString("\nTech stack: " + c.TechStack + "\n")
	}
	b.WriteString("\nRequired output keys: plan {architecture, techDecisions[], ")
	b.WriteString("fileStructure:{create[],modify[]}, schemaChanges[], apiChanges[], dependencies[]}.\n")
	return b.String()
}

// Analyze builds phase 5's prompt.
func Analyze(c Context) string {
	var b strings.Builder
	b.WriteString("Phase 5/6: analyze.\n\n")
	writeIdentity(&b, c)
	if c.ExistingPlan != "" {
		b.WriteString("\nPlan:\n" + c.ExistingPlan + "\n")
	}
	if c.RelevantMemories != "" {
		b.WriteString("\nRelevant prior context:\n" + c.RelevantMemories + "\n")
	}
	b.WriteString("\nCheck the plan against the existing codebase for conflicts, reusable code, and gaps.\n")
	b.WriteString("Required output keys: analysis {passed: bool, issues[{severity,description,suggestion}], ")
	b.WriteString("existingPatterns[], reusableCode[], suggestions[]}.\n")
	return b.String()
}

// Tasks builds phase 6's prompt.
func Tasks(c Context) string {
	var b strings.Builder
	b.WriteString("Phase 6/6: tasks.\n\n")
	writeIdentity(&b, c)
	if c.ExistingPlan != "" {
		b.WriteString("\nPlan:\n" + c.ExistingPlan + "\n")
	}
	b.WriteString("\nBreak the plan into an ordered, dependency-annotated task list.\n")
	b.WriteString("Required output keys: tasks[{id:int, title, description, files[], tests?, ")
	b.WriteString("dependencies:int[], estimatePoints?, acceptanceCriteria?}], criticalPath, parallelizable.\n")
	return b.String()
}

func writeIdentity(b *strings.Builder, c Context) {
	b.WriteString("Client: " + c.ClientName + "\nRepository: " + c.RepoName + "\n")
	b.WriteString("Feature: " + c.FeatureTitle + "\n")
}

func writeClarifications(b *strings.Builder, answers []ClarificationAnswer) {
	if len(answers) == 0 {
		return
	}
	b.WriteString("\nClarifications:\n")
	for _, a := range answers {
		b.WriteString("- Q: " + a.Question + "\n  A: " + a.Response + "\n")
	}
}
