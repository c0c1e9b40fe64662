package analysis

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/david/lessons-learned/internal/ingest"
)

const analystRole = "You are a senior quality and construction management analyst for pipeline and energy construction projects."

func indentJSON(v any) string {
	b, err := json.MarshalIndent(v, "", " ")
	if err != nil {
		return "[]"
	}
	return string(b)
}

func analyzeSystemPrompt(workType string, org OrgProfile) string {
	var orgContext string
	if org.ProfileText != "" {
		var name string
		if org.Name != "" {
			name = "Organization: " + org.Name
		}
		orgContext = fmt.Sprintf(`
CRITICAL - ORGANIZATION CONTEXT:
%s
The following programs, procedures, and systems are ALREADY IN PLACE at this organization. Do NOT recommend establishing, creating, or implementing any of these; they already exist. Instead, focus your recommendations on how to APPLY these existing programs effectively to the specific scope, or flag where existing programs may need to be adapted for this scope's unique conditions.

EXISTING PROGRAMS AND CAPABILITIES:
%s
`, name, ingest.Clip(org.ProfileText, analysisProfileChars))
	}

	var workTypeFilter string
	matchMode := "match broadly"
	if workType != "" {
		matchMode = "FILTER STRICTLY per above"
		workTypeFilter = fmt.Sprintf(`
CRITICAL - SCOPE WORK TYPE: %[1]s
Only include lessons that are genuinely applicable to %[1]s work. Be strict about this:
- Do NOT match lessons that are specific to a different work type. For example, pipeline mainline spread activities (field bending, stringing, lowering-in, mainline welding production, ROW grading) do NOT apply to facilities/compressor station work, and vice versa.
- DO match lessons about cross-cutting topics that apply regardless of work type: procurement issues, material traceability, QMS processes, NDE, client communication, welding quality (when the welding methods overlap), coating, safety, weather/environmental conditions.
- When in doubt whether a lesson crosses over, err on the side of EXCLUDING it. The user would rather miss a marginal match than get irrelevant results.
`, workType)
	}

	var noDuplicates string
	if org.ProfileText != "" {
		noDuplicates = " Do NOT recommend creating programs that already exist per the organization context above."
	}

	return fmt.Sprintf(`%s You have access to a lessons learned database and a scope of work document.
%s
%s
Your task: Cross-reference the scope of work against the lessons learned database and identify which lessons are applicable to the upcoming work. Consider matches based on:
- Work type (pipeline, compressor station, HDD, etc.): %s
- Environmental conditions (arctic, desert, wetland, etc.)
- Location similarities
- Phase of work
- Discipline overlap
- Similar materials, methods, or equipment
- Seasonal/weather parallels
- Regulatory or code similarities

Respond ONLY in valid JSON with this exact structure:
{
  "summary": "Brief 2-3 sentence overview of the scope and key risk areas",
  "matches": [
    {
      "lessonId": "<the lesson id exactly as given>",
      "relevance": "High" or "Medium" or "Low",
      "reason": "1-2 sentence explanation of why this lesson applies to this scope"
    }
  ],
  "gaps": ["List of risk areas in the SOW where no lessons learned exist"],
  "recommendations": ["Top 3-5 actionable recommendations based on the applicable lessons.%s"]
}

Be thorough but practical. A senior Quality Director will use this to prepare for the work. Keep your JSON response complete but concise; 1-2 sentences per field is sufficient.`,
		analystRole, orgContext, workTypeFilter, matchMode, noDuplicates)
}

func analyzeUserMessage(sowText, workType string, lessons []lessonSummary) string {
	var b strings.Builder
	if workType != "" {
		fmt.Fprintf(&b, "SCOPE WORK TYPE: %s\n\n", workType)
	}
	fmt.Fprintf(&b, "SCOPE OF WORK:\n%s\n\n", sowText)
	fmt.Fprintf(&b, "LESSONS LEARNED DATABASE (%d entries):\n", len(lessons))
	b.WriteString(indentJSON(lessons))
	return b.String()
}

func deliverableOrgContext(org OrgProfile, intro string) string {
	if org.ProfileText == "" {
		return ""
	}
	return fmt.Sprintf("\n%s\nOrganization: %s\n%s\n", intro, org.Name, ingest.Clip(org.ProfileText, deliverableProfileChars))
}

const riskRegisterSystem = "You are a senior quality risk management specialist for pipeline and energy construction. Generate a project-specific quality risk register based on historical lessons learned and identified gaps from a scope of work analysis."

func riskRegisterPrompt(c *Context) string {
	lessons := c.Matches
	orgContext := deliverableOrgContext(c.Org,
		"ORGANIZATION CONTEXT - EXISTING PROGRAMS:\nThe following programs and systems are ALREADY IN PLACE. Reference these in mitigations where applicable instead of recommending new programs:")
	return fmt.Sprintf(`Based on the following scope of work, matched lessons learned, and identified gaps, generate a project-specific quality risk register.

SCOPE OF WORK:
%s

MATCHED LESSONS LEARNED (%d lessons):
%s

IDENTIFIED GAPS (risk areas with no historical lessons):
%s
%s
INSTRUCTIONS:
- Derive risks from BOTH the matched lessons (historical evidence) AND the identified gaps (unknown risks).
- For risks derived from lessons, include the specific lesson IDs in source_lessons.
- For risks derived from gaps where no historical data exists, set source_lessons to ["No historical data - gap-based risk"].
- Assign likelihood based on how frequently similar issues appear in the lessons database.
- Consequence should reflect schedule, cost, and safety/regulatory impact.
- Risk level matrix: Critical = High likelihood + High consequence, High = High/Med or Med/High, Medium = Med/Med or Low/High or High/Low, Low = Low/Low or Low/Med or Med/Low.
- Mitigations should reference the organization's existing programs where applicable (per org context above).
- Suggest a responsible role for each risk (e.g. "Project Quality Manager", "Lead Welding Inspector", "NDE Level III"), not a person name.
- Generate up to 10 risks, enough to be useful but not padded with obvious filler.
- Keep each field value under 30 words. Be precise, not verbose.
- Number risks QR-001 through QR-XXX.

Respond ONLY in valid JSON with this exact structure:
{
  "risks": [
    {
      "id": "QR-001",
      "category": "e.g. Welding Quality",
      "description": "1 concise sentence referencing scope conditions",
      "likelihood": "High" or "Medium" or "Low",
      "consequence": "High" or "Medium" or "Low",
      "risk_level": "Critical" or "High" or "Medium" or "Low",
      "source_lessons": ["list of lesson IDs or gap-based note"],
      "mitigation": "1 concise sentence",
      "residual_risk": "Low" or "Medium",
      "owner": "Suggested responsible role"
    }
  ],
  "summary": "2-3 sentence overview of the risk profile for this scope"
}`,
		ingest.Clip(c.SOWText, deliverableSOWChars), len(lessons), indentJSON(lessons), indentJSON(c.Gaps), orgContext)
}

const staffingSystem = "You are a senior quality director estimating quality staffing requirements for a pipeline construction project. Base your estimates on industry standard ratios, the scope parameters provided, and historical lessons that indicate where additional quality oversight was needed."

func orNotSpecified(p Param) string {
	if p == "" || p == "0" {
		return "Not specified"
	}
	return string(p)
}

func staffingParamsBlock(p StaffingParams) string {
	duration := string(p.DurationMonths) + " months"
	if p.DurationMonths == "" || p.DurationMonths == "0" {
		duration = "Not specified"
	}
	special := "None"
	if len(p.SpecialConditions) > 0 {
		special = strings.Join(p.SpecialConditions, ", ")
	}
	return fmt.Sprintf(`PROJECT SCOPE PARAMETERS (provided by user):
- Pipe Diameter: %s
- Estimated Weld Count: %s
- Pipeline Mileage: %s
- Number of Spreads: %s
- Facilities Count (compressor stations, meter stations, etc.): %s
- Project Duration: %s
- Special Conditions: %s`,
		orNotSpecified(p.PipeDiameter), orNotSpecified(p.WeldCount), orNotSpecified(p.PipelineMileage),
		p.NumSpreads, p.FacilitiesCount, duration, special)
}

func staffingPrompt(c *Context, p StaffingParams) string {
	lessons := c.Matches
	orgContext := deliverableOrgContext(c.Org, "ORGANIZATION CONTEXT:\nExisting programs and systems already in place:")
	return fmt.Sprintf(`Based on the following scope of work, project parameters, and matched lessons learned, generate a quality staffing estimate.

SCOPE OF WORK:
%s

%s

MATCHED LESSONS LEARNED (%d lessons):
%s
%s
STAFFING BASELINE RATIOS - use these as your starting point and adjust based on scope and lessons:
- 1 Project Quality Manager per project
- 1 Quality Lead per spread
- 1 Welding Inspector (CWI) per 15-20 welders on a spread
- 1 Coating Inspector per spread with coating scope
- 1 NDE Coordinator per 2-3 NDE crews
- 1 Document Control Specialist per project (2 for mega-projects)
- Additional positions for facilities: civil inspector, mechanical inspector, electrical inspector

ADJUSTMENT GUIDELINES:
- Arctic/Cold Weather: add environmental compliance specialist, increase inspector overlap for weather delays
- FERC Jurisdictional: add regulatory documentation specialist
- Sour Service (H2S): add material verification inspector, additional NDE coverage
- Foreign Material Exclusion: add dedicated FME inspector per spread
- Class 3/4 Locations: increase CWI coverage ratio, add safety liaison
- HDD Crossings: add HDD quality specialist per crossing crew
- Offshore/Water Crossing: add marine/environmental inspector, additional NDE

COST ESTIMATION - use these approximate fully-burdened industry rates:
- Quality Manager: $180-220/hr
- Quality Lead: $150-180/hr
- CWI/Inspector: $120-150/hr
- NDE Coordinator: $130-160/hr
- Document Control: $80-110/hr
- Environmental Compliance: $100-130/hr
Note: These are ROM estimates for bid purposes only. Assume 45-50 hr work weeks for field positions.

INSTRUCTIONS:
- Reference specific lessons by ID that justify staffing increases beyond baseline.
- If matched lessons show recurring issues in a specific discipline, recommend additional headcount in that area and explain why.
- For each position, specify the phase (Full Duration, Construction Only, Pre-Construction + Construction, Pre-Construction Only, Commissioning, etc.).
- Calculate peak headcount (maximum staff on-site at any one time) vs total unique positions.
- Provide a rough-order-of-magnitude cost estimate with monthly burn rate and total.
- Keep justification to 1 concise sentence per position.
- Keep assumptions to 1 sentence each, maximum 5 assumptions.
- Keep lessons_impact to 1 sentence each, maximum 5 entries.

Respond ONLY in valid JSON with this exact structure:
{
  "summary": "2-3 sentence overview of staffing approach and key assumptions",
  "positions": [
    {
      "title": "Position Title",
      "count": 1,
      "duration_months": 12,
      "justification": "Why this position is needed at this count",
      "phase": "Full Duration"
    }
  ],
  "total_headcount": 10,
  "peak_headcount": 8,
  "assumptions": ["List of key assumptions made in developing this estimate"],
  "lessons_impact": ["How specific lessons influenced the staffing recommendation"],
  "cost_estimate": {
    "note": "Rough order of magnitude only",
    "monthly_burn_rate": 150000,
    "total_estimated": 2700000,
    "basis": "Explanation of rate assumptions and calculation methodology"
  }
}`,
		ingest.Clip(c.SOWText, deliverableSOWChars), staffingParamsBlock(p), len(lessons), indentJSON(lessons), orgContext)
}

const specGapsSystem = "You are a senior welding and materials engineer reviewing a pipeline construction scope of work for code and standard compliance risks. Flag specification gaps where the scope is silent, ambiguous, or conflicts with governing codes."

func specGapsPrompt(c *Context) string {
	lessons := c.Matches
	orgContext := deliverableOrgContext(c.Org, "ORGANIZATION CONTEXT:\nExisting procedures already in place:")
	return fmt.Sprintf(`Review the following scope of work against the identified gaps and matched lessons learned, and flag specification gaps that create code or standard compliance risk.

SCOPE OF WORK:
%s

IDENTIFIED GAPS (%d):
%s

MATCHED LESSONS LEARNED (%d lessons):
%s
%s
INSTRUCTIONS:
- Address each identified gap where a code or standard applies (e.g. API 1104, ASME B31.4/B31.8, 49 CFR 192/195, NACE/AMPP, CSA Z662).
- Cite the applicable code and clause family, not verbatim text.
- Reference lesson IDs where historical evidence supports the concern.
- Keep each field value under 30 words.
- Generate up to 10 items.

Respond ONLY in valid JSON with this exact structure:
{
  "items": [
    {
      "gap": "The scope area that is under-specified",
      "codes": ["Applicable codes or standards"],
      "risk": "1 concise sentence on the compliance risk",
      "recommendation": "1 concise sentence on the clarification to request",
      "source_lessons": ["lesson IDs, if any"]
    }
  ],
  "summary": "2-3 sentence overview of specification risk for this scope"
}`,
		ingest.Clip(c.SOWText, deliverableSOWChars), len(c.Gaps), indentJSON(c.Gaps), len(lessons), indentJSON(lessons), orgContext)
}

const executiveSystem = "You are a senior quality director writing a one-page executive narrative for a bid review meeting. Write plainly for executives who will not read the full analysis."

func executivePrompt(c *Context) string {
	lessons := c.Matches
	orgContext := deliverableOrgContext(c.Org, "ORGANIZATION CONTEXT:\nExisting programs and capabilities:")
	return fmt.Sprintf(`Write a one-page executive narrative summarizing the scope analysis below for bid review.

SCOPE OF WORK:
%s

ANALYSIS SUMMARY:
%s

MATCHED LESSONS LEARNED (%d lessons):
%s

IDENTIFIED GAPS:
%s

RECOMMENDATIONS:
%s
%s
INSTRUCTIONS:
- Lead with the overall quality risk posture in one sentence.
- Highlight the 3-5 most consequential risks, each tied to lesson IDs or gaps.
- State what existing programs cover and where the scope needs extra attention.
- Close with a bid recommendation: proceed, proceed with conditions, or do not bid, and the conditions if any.
- The narrative should be 250-400 words.

Respond ONLY in valid JSON with this exact structure:
{
  "headline": "One sentence risk posture",
  "narrative": "The one-page narrative, paragraphs separated by blank lines",
  "key_risks": ["3-5 short risk statements"],
  "bid_recommendation": "proceed" or "proceed with conditions" or "do not bid",
  "conditions": ["Conditions attached to the recommendation, if any"]
}`,
		ingest.Clip(c.SOWText, deliverableSOWChars), c.Summary, len(lessons), indentJSON(lessons),
		indentJSON(c.Gaps), indentJSON(c.Recommendations), orgContext)
}

func chatSystemPrompt(lessons []chatLesson, org OrgProfile) string {
	var orgContext string
	if org.ProfileText != "" {
		orgContext = "\nThe organization already has established programs and procedures. Do not recommend creating programs that already exist. Here is their organizational context:\n" +
			ingest.Clip(org.ProfileText, chatProfileChars)
	}
	return fmt.Sprintf(`You are a senior quality and construction management analyst helping manage a lessons learned database for pipeline and energy construction. You have %d lessons in the database.

Current database:
%s

Help the user:
- Find relevant lessons for specific situations
- Suggest new lessons that should be captured
- Analyze patterns across lessons (recurring root causes, high-risk areas)
- Draft lesson content when asked
- Identify gaps in the database
%s
Be direct and field-practical. This is for a senior Quality Director.`, len(lessons), indentJSON(lessons), orgContext)
}
