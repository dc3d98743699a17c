package kimai

// actions builds an action set from a list of names.
func actions(names ...string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

// pagingFields are accepted by every list action and passed through as-is.
var pagingFields = map[string]Field{
	"page":    {Type: FieldInteger},
	"size":    {Type: FieldInteger},
	"order":   {Type: FieldEnum, Enum: []string{"ASC", "DESC"}},
	"orderBy": {Type: FieldString},
	"term":    {Type: FieldString},
}

func withPaging(fields map[string]Field) map[string]Field {
	for name, f := range pagingFields {
		if _, ok := fields[name]; !ok {
			fields[name] = f
		}
	}
	return fields
}

// rateActions are available on the entity kinds that carry rate sub-collections.
const (
	ActionRateList   = "rate_list"
	ActionRateAdd    = "rate_add"
	ActionRateDelete = "rate_delete"
)

var rateFields = map[string]Field{
	"user":         {Type: FieldInteger},
	"rate":         {Type: FieldDecimal},
	"hourlyRate":   {Type: FieldDecimal},
	"fixedRate":    {Type: FieldDecimal},
	"internalRate": {Type: FieldDecimal},
	"isFixed":      {Type: FieldBool},
	"rate_id":      {Type: FieldInteger},
}

// NewRegistry builds the entity schema table. Paths and field names follow
// the Kimai v2 API; field types drive validation and query coercion.
func NewRegistry() *Registry {
	kinds := map[string]*Descriptor{
		"project": {
			Kind:           "project",
			CollectionPath: "/api/projects",
			Actions: actions("list", "get", "create", "update", "delete", "meta_update",
				ActionRateList, ActionRateAdd, ActionRateDelete),
			Required: map[string][]string{
				"create":         {"name", "customer"},
				"meta_update":    {"name", "value"},
				ActionRateDelete: {"rate_id"},
			},
			Fields: withPaging(merge(map[string]Field{
				"name":             {Type: FieldString},
				"customer":         {Type: FieldInteger},
				"comment":          {Type: FieldString},
				"orderNumber":      {Type: FieldString},
				"orderDate":        {Type: FieldDate},
				"start":            {Type: FieldDate},
				"end":              {Type: FieldDate},
				"color":            {Type: FieldString},
				"visible":          {Type: FieldInteger},
				"billable":         {Type: FieldBool},
				"globalActivities": {Type: FieldBool},
				"ignoreDates":      {Type: FieldBool},
				"budget":           {Type: FieldDecimal},
				"timeBudget":       {Type: FieldInteger},
			}, rateFields)),
		},
		"activity": {
			Kind:           "activity",
			CollectionPath: "/api/activities",
			Actions: actions("list", "get", "create", "update", "delete", "meta_update",
				ActionRateList, ActionRateAdd, ActionRateDelete),
			Required: map[string][]string{
				"create":         {"name"},
				"meta_update":    {"name", "value"},
				ActionRateDelete: {"rate_id"},
			},
			Fields: withPaging(merge(map[string]Field{
				"name":       {Type: FieldString},
				"project":    {Type: FieldInteger},
				"projects":   {Type: FieldString},
				"comment":    {Type: FieldString},
				"color":      {Type: FieldString},
				"visible":    {Type: FieldInteger},
				"billable":   {Type: FieldBool},
				"globals":    {Type: FieldBool},
				"budget":     {Type: FieldDecimal},
				"timeBudget": {Type: FieldInteger},
			}, rateFields)),
		},
		"customer": {
			Kind:           "customer",
			CollectionPath: "/api/customers",
			Actions: actions("list", "get", "create", "update", "delete", "meta_update",
				ActionRateList, ActionRateAdd, ActionRateDelete),
			Required: map[string][]string{
				"create":         {"name", "country", "currency", "timezone"},
				"meta_update":    {"name", "value"},
				ActionRateDelete: {"rate_id"},
			},
			Fields: withPaging(merge(map[string]Field{
				"name":     {Type: FieldString},
				"number":   {Type: FieldString},
				"comment":  {Type: FieldString},
				"company":  {Type: FieldString},
				"vatId":    {Type: FieldString},
				"contact":  {Type: FieldString},
				"address":  {Type: FieldString},
				"country":  {Type: FieldString},
				"currency": {Type: FieldString},
				"phone":    {Type: FieldString},
				"fax":      {Type: FieldString},
				"mobile":   {Type: FieldString},
				"email":    {Type: FieldString},
				"homepage": {Type: FieldString},
				"timezone": {Type: FieldString},
				"color":    {Type: FieldString},
				"visible":  {Type: FieldInteger},
				"billable": {Type: FieldBool},
				"budget":   {Type: FieldDecimal},
			}, rateFields)),
		},
		"user": {
			Kind:           "user",
			CollectionPath: "/api/users",
			Actions:        actions("list", "get", "create", "update", "unlock_month"),
			Required: map[string][]string{
				"create":       {"username", "email", "plainPassword"},
				"unlock_month": {"month"},
			},
			Fields: withPaging(map[string]Field{
				"username":      {Type: FieldString},
				"alias":         {Type: FieldString},
				"title":         {Type: FieldString},
				"accountNumber": {Type: FieldString},
				"color":         {Type: FieldString},
				"email":         {Type: FieldString},
				"language":      {Type: FieldString},
				"timezone":      {Type: FieldString},
				"enabled":       {Type: FieldBool},
				"plainPassword": {Type: FieldString},
				"plainApiToken": {Type: FieldString},
				"roles":         {Type: FieldList},
				"systemAccount": {Type: FieldBool},
				"visible":       {Type: FieldInteger},
				"full":          {Type: FieldBool},
				"month":         {Type: FieldString},
			}),
			Strip: []string{"apiToken"},
		},
		"team": {
			Kind:           "team",
			CollectionPath: "/api/teams",
			Actions: actions("list", "get", "create", "update", "delete",
				"add_member", "remove_member", "grant", "revoke"),
			Required: map[string][]string{
				"create":        {"name"},
				"add_member":    {"user"},
				"remove_member": {"user"},
				"grant":         {"target", "target_id"},
				"revoke":        {"target", "target_id"},
			},
			Fields: withPaging(map[string]Field{
				"name":      {Type: FieldString},
				"color":     {Type: FieldString},
				"members":   {Type: FieldList},
				"user":      {Type: FieldInteger},
				"target":    {Type: FieldEnum, Enum: []string{"customer", "project", "activity"}},
				"target_id": {Type: FieldInteger},
			}),
		},
		"tag": {
			Kind:           "tag",
			CollectionPath: "/api/tags",
			Actions:        actions("list", "create", "delete"),
			Required: map[string][]string{
				"create": {"name"},
			},
			Fields: withPaging(map[string]Field{
				"name":    {Type: FieldString},
				"color":   {Type: FieldString},
				"visible": {Type: FieldBool},
			}),
		},
		"invoice": {
			Kind:           "invoice",
			CollectionPath: "/api/invoices",
			Actions:        actions("list", "get"),
			Fields: withPaging(map[string]Field{
				"begin":     {Type: FieldDate},
				"end":       {Type: FieldDate},
				"customers": {Type: FieldList},
				"status":    {Type: FieldList},
			}),
		},
		"holiday": {
			Kind:           "holiday",
			CollectionPath: "/api/public-holidays",
			Actions:        actions("list", "delete"),
			Fields: withPaging(map[string]Field{
				"begin": {Type: FieldDate},
				"end":   {Type: FieldDate},
				"group": {Type: FieldString},
			}),
		},
		"timesheet": {
			Kind:           "timesheet",
			CollectionPath: "/api/timesheets",
			Actions: actions("list", "get", "create", "update", "delete",
				"stop", "restart", "duplicate", "export_toggle", "meta_update",
				"active", "recent"),
			Required: map[string][]string{
				"create":      {"begin", "project", "activity"},
				"meta_update": {"name", "value"},
			},
			Fields: withPaging(map[string]Field{
				"begin":          {Type: FieldDateTime},
				"end":            {Type: FieldDateTime},
				"project":        {Type: FieldInteger},
				"activity":       {Type: FieldInteger},
				"customer":       {Type: FieldInteger},
				"description":    {Type: FieldString},
				"fixedRate":      {Type: FieldDecimal},
				"hourlyRate":     {Type: FieldDecimal},
				"user":           {Type: FieldString},
				"tags":           {Type: FieldString},
				"exported":       {Type: FieldBool},
				"billable":       {Type: FieldBool},
				"active":         {Type: FieldBool},
				"full":           {Type: FieldBool},
				"copy_all":       {Type: FieldBool},
				"modified_after": {Type: FieldDateTime},
				"name":           {Type: FieldString},
				"value":          {Type: FieldString},
			}),
		},
		"absence": {
			Kind:           "absence",
			CollectionPath: "/api/absences",
			Actions:        actions("list", "create", "delete", "approve", "reject", "types"),
			Required: map[string][]string{
				"create": {"type", "date", "comment"},
			},
			Fields: withPaging(map[string]Field{
				"user": {Type: FieldString},
				"type": {Type: FieldEnum, Enum: []string{
					"holiday", "time_off", "sickness", "sickness_child",
					"parental", "unpaid", "other",
				}},
				"date":     {Type: FieldDate},
				"end":      {Type: FieldDate},
				"begin":    {Type: FieldDate},
				"duration": {Type: FieldString},
				"half_day": {Type: FieldBool},
				"comment":  {Type: FieldString},
				"status":   {Type: FieldEnum, Enum: []string{"new", "approved", "rejected"}},
				"language": {Type: FieldString},
			}),
		},
	}
	return &Registry{kinds: kinds}
}

func merge(dst map[string]Field, more map[string]Field) map[string]Field {
	for name, f := range more {
		if _, ok := dst[name]; !ok {
			dst[name] = f
		}
	}
	return dst
}
