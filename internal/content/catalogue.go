// ABOUTME: Content category and subcategory catalogue
// ABOUTME: Categories are fixed; each owns an ordered list of subcategories

package content

// Category is a top-level content section with its subcategories.
type Category struct {
	Name          string
	Subcategories []string
}

var catalogue = []Category{
	{Name: "Fitness", Subcategories: []string{"Workouts", "Training Tips", "Exercise Guides"}},
	{Name: "Nutrition", Subcategories: []string{"Meal Plans", "Recipes", "Supplements"}},
	{Name: "Lifestyle", Subcategories: []string{"Success Stories", "Motivation", "Recovery"}},
}

// Categories returns the catalogue in display order.
func Categories() []Category {
	out := make([]Category, len(catalogue))
	for i, c := range catalogue {
		out[i] = Category{Name: c.Name, Subcategories: append([]string(nil), c.Subcategories...)}
	}
	return out
}

// LookupCategory returns the named category.
func LookupCategory(name string) (Category, bool) {
	for _, c := range catalogue {
		if c.Name == name {
			return c, true
		}
	}
	return Category{}, false
}

// HasSubcategory reports whether sub belongs to c.
func (c Category) HasSubcategory(sub string) bool {
	for _, s := range c.Subcategories {
		if s == sub {
			return true
		}
	}
	return false
}
