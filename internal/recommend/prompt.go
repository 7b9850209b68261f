package recommend

import (
	"fmt"
	"strings"
)

// HealthyLabel is matched case-insensitively and answered without calling
// the text service.
const HealthyLabel = "healthy"

const healthyTips = `
<h5>Great News! Your plant appears healthy.</h5>
<p>To keep your tomato plant thriving, here are some general tips:</p>
<ul>
    <li>Ensure adequate sunlight (6-8 hours daily).</li>
    <li>Water consistently at the base of the plant to avoid leaf wetness.</li>
    <li>Fertilize with a balanced tomato-specific fertilizer.</li>
    <li>Provide good air circulation by proper spacing or pruning.</li>
    <li>Monitor regularly for any early signs of pests or disease.</li>
</ul>
<p>Consistent care is the best prevention!</p>
`

// HealthyTips returns the static advice block served for healthy leaves.
func HealthyTips() string {
	return healthyTips
}

// IsHealthy compares case-insensitively and without trimming, so " healthy "
// is treated as a disease name.
func IsHealthy(disease string) bool {
	return strings.EqualFold(disease, HealthyLabel)
}

const promptTemplate = `You are an expert botanist and agricultural advisor. A user has identified '%s' on their tomato plant.
Provide a clear, actionable management guide using Markdown.

**Structure your response exactly as follows:**

### <i class="fa-solid fa-circle-info"></i> Description
(A brief, easy-to-understand paragraph describing the disease.)

### <i class="fa-solid fa-toolbox"></i> Treatment & Management
(A numbered list of actionable steps. Use **bolding** for key actions or products.)

### <i class="fa-solid fa-shield-halved"></i> Prevention
(A numbered list of preventive measures.)

Keep the tone helpful and direct for a home gardener. Use Font Awesome 6 solid icons as shown.
`

// BuildPrompt renders the management-guide prompt for disease. Output is a
// pure function of its input.
func BuildPrompt(disease string) string {
	return fmt.Sprintf(promptTemplate, disease)
}
