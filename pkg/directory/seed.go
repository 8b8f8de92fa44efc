package directory

// SeedContacts returns the demo contact set. The two Johns are deliberate:
// they make single-token "John" lookups ambiguous, which is what separates
// the adaptive and rigid workflows in comparisons.
func SeedContacts() []Contact {
	return []Contact{
		{Name: "John Smith", Email: "john.smith@example.com", Department: "Research & Development", Role: "Senior Engineer", Active: true},
		{Name: "John Doe", Email: "john.doe@example.com", Department: "Human Resources", Role: "HR Manager", Active: true},
		{Name: "Alice", Email: "alice@example.com", Department: "International Sales", Role: "Sales Director", Active: true},
		{Name: "Bob Wilson", Email: "bob.wilson@example.com", Department: "Finance", Role: "Financial Analyst", Active: true},
		{Name: "Carol Martinez", Email: "carol.martinez@example.com", Department: "Engineering", Role: "Tech Lead", Active: true},
		{Name: "David Chen", Email: "david.chen@example.com", Department: "Product Management", Role: "Product Manager", Active: true},
		{Name: "Eve Johnson", Email: "eve.johnson@example.com", Department: "Marketing", Role: "Marketing Director", Active: true},
		{Name: "Frank Brown", Email: "frank.brown@example.com", Department: "Operations", Role: "Operations Manager", Active: true},
	}
}
