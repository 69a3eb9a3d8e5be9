package llm

import (
	"encoding/json"
	"fmt"
)

func resumeParsePrompt(resumeText string) string {
	return "Extract structured JSON for the candidate following the response schema.\n" +
		"Resume contents:\n<resume>\n" + resumeText + "\n</resume>"
}

func reportParsePrompt(reportText string) string {
	return "Extract structured JSON for the project report following the response schema.\n" +
		"Project report contents:\n<project_report>\n" + reportText + "\n</project_report>"
}

func scoreResumePrompt(req ScoreResumeRequest) string {
	resumeJSON, _ := json.Marshal(req.Resume)
	return fmt.Sprintf(
		"You are evaluating a candidate for the role %q.\n"+
			"Score each criterion from 1 to 5 and return JSON following the response schema:\n"+
			"technical_skills_match, experience_level, relevant_achievements, cultural_collaboration_fit,\n"+
			"plus a short cv_feedback string.\n\n"+
			"Scoring rubric:\n<rubric>\n%s\n</rubric>\n\n"+
			"Job description:\n<job_description>\n%s\n</job_description>\n\n"+
			"Candidate resume (structured):\n<resume>\n%s\n</resume>",
		req.JobTitle, req.ScoringRubric, req.JobDescription, resumeJSON)
}

func scoreReportPrompt(req ScoreReportRequest) string {
	reportJSON, _ := json.Marshal(req.Report)
	return fmt.Sprintf(
		"You are evaluating a project deliverable for the role %q.\n"+
			"Score each criterion from 1 to 5 and return JSON following the response schema:\n"+
			"correctness, code_quality_structure, resilience_error_handling, documentation_explanation,\n"+
			"creativity_bonus, plus a short project_feedback string.\n\n"+
			"Scoring rubric:\n<rubric>\n%s\n</rubric>\n\n"+
			"Case study brief:\n<case_brief>\n%s\n</case_brief>\n\n"+
			"Project report (structured):\n<project_report>\n%s\n</project_report>",
		req.JobTitle, req.ScoringRubric, req.CaseBrief, reportJSON)
}

func overallSummaryPrompt(resumeScore, reportScore map[string]any) string {
	resumeJSON, _ := json.Marshal(resumeScore)
	reportJSON, _ := json.Marshal(reportScore)
	return fmt.Sprintf(
		"Write 3-5 sentences summarizing this candidate's overall fit, strengths,\n"+
			"and gaps, based on the two score payloads below. Respond with plain text.\n\n"+
			"Resume scores:\n%s\n\nProject scores:\n%s",
		resumeJSON, reportJSON)
}
