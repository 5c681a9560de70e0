package ai

import (
	"context"
	"fmt"
	"strings"

	"amanhealth/pkg/domain"
)

// GenerateMealPlan produces a 7-day meal program tailored to the profile's
// goals and dietary restrictions.
func GenerateMealPlan(ctx context.Context, client *GeminiClient, model string, profile domain.UserProfile) ([]domain.MealPlan, error) {
	prompt := fmt.Sprintf(
		"صمم برنامج وجبات صحي لمدة 7 أيام لـ %s. الأهداف: %s. القيود: %s. JSON format.",
		profile.Name,
		strings.Join(profile.Goals, ", "),
		strings.Join(profile.DietaryRestrictions, ", "),
	)
	schema := &Schema{
		Type: TypeArray,
		Items: &Schema{
			Type: TypeObject,
			Properties: map[string]*Schema{
				"day":       {Type: TypeString},
				"breakfast": {Type: TypeString},
				"lunch":     {Type: TypeString},
				"dinner":    {Type: TypeString},
				"snack":     {Type: TypeString},
			},
		},
	}
	var plan []domain.MealPlan
	if err := client.GenerateJSON(ctx, model, []Part{TextPart(prompt)}, schema, 0, &plan); err != nil {
		return nil, err
	}
	return plan, nil
}
