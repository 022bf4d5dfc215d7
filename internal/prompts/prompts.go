// Package prompts holds the fixed instructions sent to the completion
// service. Everything here is pure string building so the same request
// always produces the same bytes.
package prompts

import (
	"fmt"
	"strings"

	"github.com/ivlev/teachme/internal/config"
)

const responseShape = "```json\n" + `{
  "filename": "scene.py",
  "scene_name": "ConceptScene",
  "description": "Brief description for accessibility",
  "code": "from manim import *\n\nclass ConceptScene(Scene):\n    def construct(self):\n        # Animation code here\n        pass",
  "estimated_duration": 20.0
}` + "\n```"

// AnimationSystem is the preamble for a fresh script.
const AnimationSystem = `You are an expert Manim animator who creates clear, educational animations.
You write clean, well-commented Python code using Manim Community Edition.
Focus on visual clarity and educational value.

Your animations should:
- Be 15-30 seconds long
- Use clear visual transitions
- Include descriptive comments in the code
- Focus on one core concept
- Be intuitive
- Use proper Manim Community Edition syntax
- Define exactly one Scene subclass
- Never import os, subprocess, sys or shutil, and never call open, exec or eval

Always respond with a JSON object matching this exact structure:
` + responseShape

// RepairSystem is the preamble for fixing a script that failed to render.
const RepairSystem = `You are an expert Manim animator who fixes errors in Manim code.
You receive a broken Manim script and an error message, then provide a corrected version.

Your corrections should:
- Fix the specific error mentioned
- Maintain the original intent and visual concept
- Use proper Manim Community Edition syntax
- Keep the same scene structure and duration
- Preserve helpful comments

Always respond with a JSON object matching this exact structure:
` + responseShape

var styleDescriptions = map[config.Style]string{
	config.StyleLight: "light background with dark text and colorful elements",
	config.StyleDark:  "dark background with light text and bright colorful elements",
}

// StyleDescription falls back to the light description for unknown styles.
func StyleDescription(style config.Style) string {
	if d, ok := styleDescriptions[style]; ok {
		return d
	}
	return styleDescriptions[config.StyleLight]
}

// Animation builds the user message for a fresh script.
func Animation(prompt string, style config.Style) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Create a Manim animation that visually explains: %s\n\n", strings.TrimSpace(prompt))
	b.WriteString("Requirements:\n")
	b.WriteString("- Animation duration: 15-30 seconds\n")
	fmt.Fprintf(&b, "- Use %s\n", StyleDescription(style))
	b.WriteString("- Include clear visual transitions\n")
	b.WriteString("- Add descriptive comments in the code\n")
	b.WriteString("- Focus on one core concept\n")
	b.WriteString("- Make it intuitive for beginners\n")
	b.WriteString("- Use Manim Community Edition syntax (from manim import *)\n\n")
	b.WriteString("Important: Respond with valid JSON only. No additional text or formatting.")
	return b.String()
}

// Repair builds the user message asking to fix code that failed with
// toolkitErr. attempt is 1-based and counts repair calls only.
func Repair(code, toolkitErr string, attempt, maxAttempts int) string {
	var b strings.Builder
	b.WriteString("Fix the following Manim script that failed to render:\n\n")
	b.WriteString("**Error Message:**\n```\n")
	b.WriteString(strings.TrimSpace(toolkitErr))
	b.WriteString("\n```\n\n")
	b.WriteString("**Original Code:**\n```python\n")
	b.WriteString(strings.TrimSpace(code))
	b.WriteString("\n```\n\n")
	fmt.Fprintf(&b, "**Attempt:** %d/%d\n\n", attempt, maxAttempts)
	b.WriteString("Please analyze the error and provide a corrected version of the code. Focus on:\n")
	b.WriteString("1. Fixing the specific error mentioned\n")
	b.WriteString("2. Ensuring proper Manim Community Edition syntax\n")
	b.WriteString("3. Maintaining the original visual concept\n")
	b.WriteString("4. Keeping the animation educational and clear\n\n")
	b.WriteString("Important: Respond with valid JSON only. No additional text or formatting.")
	return b.String()
}

// BriefSystem is the preamble for expanding a short idea into a written
// brief the animator can follow step by step. The answer is plain text.
const BriefSystem = `You are an expert educational content designer who plans short Manim animations.
You turn a user's idea into a structured written brief for the animator.

The brief must cover, under these headings:
LEARNING OBJECTIVE: what the viewer should understand afterwards
KEY CONCEPTS: the 3-5 concepts to show
COMMON MISCONCEPTIONS: what to show the concept is NOT
VISUAL STRATEGY: metaphors, color coding and how to go from concrete to abstract
ANIMATION SEQUENCE: 5-8 numbered steps, each with what appears on screen and its key insight
TEXT TO INCLUDE: exact on-screen text and when it appears
QUALITY REQUIREMENTS: readable text that never overlaps diagrams, standard notation, labeled axes

Target 20-30 seconds in total. Respond with the brief only, no code.`

// Brief builds the user message for the brief expansion.
func Brief(prompt string) string {
	return fmt.Sprintf("Write the animation brief for this educational request:\n\n%q\n\n"+
		"Focus on educational clarity and building intuitive understanding.", strings.TrimSpace(prompt))
}

// AnimationFromBrief builds the user message for a fresh script when an
// expanded brief is available.
func AnimationFromBrief(prompt, brief string, style config.Style) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Create a Manim animation that visually explains: %s\n\n", strings.TrimSpace(prompt))
	b.WriteString("Follow this brief:\n\n")
	b.WriteString(strings.TrimSpace(brief))
	b.WriteString("\n\nCRITICAL: Ensure no text overlaps with visual elements. Position all labels and equations in clear, unobstructed areas.\n\n")
	b.WriteString("Additional Requirements:\n")
	b.WriteString("- Animation duration: 20-30 seconds\n")
	fmt.Fprintf(&b, "- Use %s\n", StyleDescription(style))
	b.WriteString("- Follow the step-by-step sequence precisely\n")
	b.WriteString("- Include all specified text overlays with proper timing\n")
	b.WriteString("- Add descriptive comments in the code\n")
	b.WriteString("- Use Manim Community Edition syntax (from manim import *)\n\n")
	b.WriteString("Important: Respond with valid JSON only. No additional text or formatting.")
	return b.String()
}
