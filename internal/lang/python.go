package lang

func init() {
	Languages["python"] = &Language{
		Name:       "python",
		Extensions: []string{".py"},
		Frontend:   LineScanner,
	}
}
