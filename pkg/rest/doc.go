// Package rest serves any table of a relational database over HTTP without
// schema declaration.
//
// Paths have the form /database/table/id, where every segment is optional
// from the right. A segment starting with "_" is a command and ends the
// path:
//
//	Path                      | Statement
//	--------------------------|-------------------------------------------
//	/_databases               | list databases
//	/db/_tables               | list tables of db
//	/db/table/_describe       | describe the columns of table
//	/db/_query                | run the raw SQL in the request body
//	GET /db/table             | SELECT, filtered by the query string
//	POST /db/table            | INSERT the JSON object or list of objects
//	GET /db/table/id          | SELECT one row by id
//	PUT|PATCH /db/table/id    | UPDATE one row by id from a JSON object
//
// Query parameters filter rows as column=value or column__op=value, with
// op one of exact, neq, lt, lte, gt, gte, in, notin, iexact, contains,
// icontains, startswith, istartswith, endswith, iendswith and isnull.
// _fields selects columns and _idfield names the id column.
//
// Credentials come from HTTP basic auth and are passed through to the
// database, which decides what the user may do. Every response, including
// errors, is a JSON envelope holding either "result" or "error":
//
//	{
//	  "request": {"user": "alice", "database": "shop", "table": "bikes",
//	              "query": {"query": "SELECT ...", "parameters": {...}}},
//	  "result":  {"rows": 1, "data": [{...}]}
//	}
//
// Example usage:
//
//	pools, err := pgx.NewPoolManager(pgx.PoolOptions{ConnString: "postgres://localhost/postgres"})
//	if err != nil {
//		log.Fatal(err)
//	}
//	server := rest.NewServer(pgx.NewExecutor(pools, logger), rest.Options{BaseURL: "/api"})
//	defer server.Close()
//
//	r := httputil.NewRouter()
//	server.Register(r)
//	log.Fatal(r.ListenAndServe(":8080"))
package rest
