package repo

var (
	_ Store = (*MongoRepo)(nil)
	_ Store = (*TokenRepo)(nil)
)
