package llm

import "fmt"

const systemPrompt = `You are an expert ATS (Applicant Tracking System) analyzer with deep knowledge of resume parsing. You answer with a single JSON object and nothing else.`

// BuildAnalysisMessages returns the chat messages asking the model to turn
// resume text into a ResumeAnalysis.
func BuildAnalysisMessages(resumeText string) []Message {
	return []Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: buildAnalysisPrompt(resumeText)},
	}
}

func buildAnalysisPrompt(resumeText string) string {
	return fmt.Sprintf(`Analyze the following resume text and extract structured information.

RESUME TEXT:
"""
%s
"""

Return a JSON object with exactly this structure:
{
  "name": "Full name of the person, never a company name or job title",
  "title": "Current or most recent job title",
  "summary": "A professional summary of 2-3 sentences",
  "contacts": {
    "email": "",
    "phone": "",
    "location": "",
    "linkedin": "",
    "website": ""
  },
  "skills": {
    "technical": ["specific technical skills"],
    "soft": ["specific soft skills"],
    "tools": ["tools, software and platforms"],
    "languages": ["programming and human languages"],
    "certifications": ["professional certifications"]
  },
  "experience": [
    {
      "company": "Company name",
      "title": "Job title",
      "startDate": "MM/YYYY",
      "endDate": "MM/YYYY or Present",
      "responsibilities": ["key responsibilities"],
      "achievements": ["achievements, with metrics when available"]
    }
  ],
  "education": [
    {
      "institution": "Institution name",
      "degree": "Degree",
      "field": "Field of study",
      "graduationYear": "YYYY"
    }
  ],
  "keywords": ["15-20 keywords most relevant for ATS matching"]
}

RULES:
- Use only information present in the resume text.
- Leave a string empty or an array empty when the information is missing.
- List experience from most recent to oldest.
- Do not wrap the JSON in markdown or add commentary.`, resumeText)
}
