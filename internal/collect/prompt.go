// File: internal/collect/prompt.go
package collect

import (
	"fmt"
	"strings"
)

// SystemPrompt instructs the model on how to shape its fixes so that the
// literal-substitution applier can use them.
const SystemPrompt = `You are an expert programmer tasked with analyzing code quality and suggesting fixes.
Focus on correctness, performance, security, and maintainability.

IMPORTANT FIX FORMATTING GUIDELINES:
1. Suggest small, targeted fixes rather than large rewrites
2. Each fix should address a single issue
3. Maintain the overall structure and organization of the original code
4. Preserve function boundaries and indentation
5. Ensure each fix is syntactically valid code
6. Prefer minimal changes that solve the issue
7. Never combine multiple lines of code into a single line
8. Never remove important newlines between functions or code blocks
9. Ensure that all braces {}, parentheses (), and brackets [] are properly matched
10. If you're unsure about a fix, suggest a safer, more conservative change

These guidelines are crucial to ensure that your suggestions can be
automatically applied without breaking the code structure.`

// BuildPrompt assembles the analysis request body from the gathered inputs.
// The embedded format block tells the model how to wrap its proposals;
// the exact marker and labels are what the extractor and parser expect.
func BuildPrompt(in Inputs) string {
	var b strings.Builder

	b.WriteString("# Code Analysis Request\n\n")
	b.WriteString("I need you to analyze the output from static analysis tools and provide detailed feedback and fixes.\n")

	section(&b, "Project Information", in.ProjectInfo)
	if in.Manifest != "" {
		fmt.Fprintf(&b, "\n## Manifest\n```toml\n%s\n```\n", in.Manifest)
	}
	section(&b, "Lint Output", in.Lint)
	section(&b, "Security Audit", in.Audit)
	section(&b, "Sample Code Files", in.FileSamples)

	b.WriteString(`
## Instructions

Please analyze the code based on the lint warnings, security audit, and file samples provided. Then:

1. Identify the most important issues to fix, prioritizing:
   - Security vulnerabilities
   - Potential bugs and logic errors
   - Performance issues
   - Code style and best practices

2. Provide a summary of the key issues found.

3. For each issue you identify, provide:
   - A clear explanation of the problem
   - The severity level (Critical, High, Medium, Low)
   - Specific code fixes using this format:

` + "```" + `
<FIXES>
file: path/to/file
---
original: |
  // Original problematic code here (exact match required)
---
fixed: |
  // Fixed code here
---
explanation: |
  Explanation of what was fixed and why
</FIXES>
` + "```" + `

4. IMPORTANT REQUIREMENTS FOR FIXES:
   - Make each fix as small and focused as possible
   - Maintain the exact same code structure, including line breaks and indentation
   - Ensure the original code section exactly matches what's in the file
   - Each fix should address a single issue only

5. Use the exact <FIXES> format for automatic code updates.

6. Provide additional recommendations for improving the codebase that weren't directly flagged by the tools.

Focus on practical, high-value improvements that will make the code more reliable, secure, and maintainable.
`)

	return b.String()
}

func section(b *strings.Builder, title, body string) {
	if strings.TrimSpace(body) == "" {
		return
	}
	fmt.Fprintf(b, "\n## %s\n%s\n", title, body)
}
