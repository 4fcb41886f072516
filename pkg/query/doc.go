// Package query compiles REST-style requests into parameterized SQL.
//
// A request path is resolved into an optional command, database, table and
// id:
//
//	Path                 | Statement
//	---------------------|----------------------------------------------
//	/_databases          | list databases
//	/db/_tables          | list tables
//	/db/_query           | request body as raw SQL (single statement, no DELETE/DROP)
//	/db/table/_describe  | describe table
//	GET  /db/table       | SELECT with filters
//	POST /db/table       | INSERT one row (object body) or many (array body)
//	/db/table/42         | SELECT by id, or UPDATE by id when a body is sent
//
// Query-string keys filter rows. A key is a column name with an optional
// operator suffix:
//
//	Key                 | Predicate
//	--------------------|----------------------------------------
//	col=v               | col = v   (col IS NULL when v is NULL)
//	col__exact=v        | col = v
//	col__neq=v          | col != v
//	col__lt/lte/gt/gte  | col < v, col <= v, col > v, col >= v
//	col__in=["a","b"]   | col IN ('a', 'b')   (or repeated keys)
//	col__notin=...      | col NOT IN (...)
//	col__iexact=v       | case-insensitive equality
//	col__contains=v     | col LIKE '%v%'   (icontains for ILIKE)
//	col__startswith=v   | col LIKE 'v%'    (istartswith)
//	col__endswith=v     | col LIKE '%v'    (iendswith)
//	col__isnull=true    | col IS NULL   (anything not truthy: IS NOT NULL)
//
// Keys starting with an underscore configure the compiler: _fields selects
// columns (JSON array or repeated key) and _idfield overrides the id column.
//
// Values are bound as named parameters except for IN lists, whose length
// varies; those are rendered as literals by Escape. The compiler is pure:
// it performs no I/O and keeps no state between calls.
//
// Example:
//
//	c := query.NewCompiler(query.Options{Dialect: query.SQLite})
//	rp, err := query.ResolvePath("/shop/bikes")
//	if err != nil {
//		return err
//	}
//	q, err := c.Compile(rp, url.Values{"weight__lte": {"12"}}, "", http.MethodGet)
//	// q.Text:   SELECT * FROM "bikes" WHERE "weight" <= :weight
//	// q.Params: map[weight:12]
package query
