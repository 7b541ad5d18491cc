package services

import "github.com/admxx9/pecc-studii-sub000/internal/models"

// CanAccess decides whether userPlan satisfies requiredPlan. An empty
// requirement means free; an empty user plan satisfies nothing paid; any
// unknown requirement is refused.
func CanAccess(requiredPlan, userPlan models.PlanType) bool {
	switch models.NormalizePlan(string(requiredPlan)) {
	case models.PlanNone:
		return true
	case models.PlanBasic:
		return userPlan == models.PlanBasic || userPlan == models.PlanPro
	case models.PlanPro:
		return userPlan == models.PlanPro
	default:
		return false
	}
}

// CanAccessLesson applies the lesson's premium gate before its plan
// requirement.
func CanAccessLesson(lesson *models.Lesson, userPlan models.PlanType) bool {
	if lesson.IsPremium && !userPlan.IsPaid() {
		return false
	}
	return CanAccess(lesson.RequiredPlan, userPlan)
}
