// Package route defines the routing rule model: routes, match specifications,
// predicate trees, transforms, actions, and the control-message contract.
//
// Routes are pure configuration. A route pairs a match specification
// (topic pattern, source, header equality, optional where-predicate) with an
// optional transform and an ordered action list. The routing engine owns all
// evaluation; nothing in this package touches the bus.
//
// Predicates form a small recursive tree expressed as a closed sum type:
// comparison leaves (eq, neq, gt, gte, lt, lte), membership (in), regex,
// existence, and the combinators and/or/not. The JSON codec round-trips the
// tree for control messages and storage adapters.
package route
