package models

import (
	"time"

	"github.com/admxx9/pecc-studii-sub000/internal/docstore"
)

// Lesson is a video lesson. IsPremium is a coarse gate applied before
// RequiredPlan.
type Lesson struct {
	ID           string    `firestore:"-" json:"id"`
	Title        string    `firestore:"title" json:"title"`
	Description  string    `firestore:"description" json:"description"`
	VideoURL     string    `firestore:"videoUrl" json:"videoUrl,omitempty"`
	IsPremium    bool      `firestore:"isPremium" json:"isPremium"`
	RequiredPlan PlanType  `firestore:"requiredPlan" json:"requiredPlan"`
	Order        int       `firestore:"order" json:"order"`
	CreatedAt    time.Time `firestore:"createdAt" json:"createdAt"`
}

// Tool is a downloadable tool.
type Tool struct {
	ID           string    `firestore:"-" json:"id"`
	Name         string    `firestore:"name" json:"name"`
	Description  string    `firestore:"description" json:"description"`
	DownloadURL  string    `firestore:"downloadUrl" json:"downloadUrl,omitempty"`
	RequiredPlan PlanType  `firestore:"requiredPlan" json:"requiredPlan"`
	CreatedAt    time.Time `firestore:"createdAt" json:"createdAt"`
}

func LessonFromDoc(doc *docstore.Document) (*Lesson, error) {
	var l Lesson
	if err := doc.DataTo(&l); err != nil {
		return nil, err
	}
	l.ID = doc.ID
	l.RequiredPlan = NormalizePlan(string(l.RequiredPlan))
	return &l, nil
}

func ToolFromDoc(doc *docstore.Document) (*Tool, error) {
	var t Tool
	if err := doc.DataTo(&t); err != nil {
		return nil, err
	}
	t.ID = doc.ID
	t.RequiredPlan = NormalizePlan(string(t.RequiredPlan))
	return &t, nil
}
