package backend

// helper is a piece of C++ runtime support emitted ahead of the functions that
// use it. Helpers are emitted in table order, which is also dependency order.
type helper struct {
	name     string
	includes []string
	deps     []string
	// when lists helpers that must all be in use for this one to be emitted
	when []string
	// decl is emitted ahead of all helper code, so overloads can call each other
	decl string
	code string
}

var helpers = []helper{
	{
		name:     "error",
		includes: []string{"<stdexcept>", "<string>"},
		code: `[[noreturn]] inline void py_raise(const char* kind, const std::string& msg) {
    throw std::runtime_error(std::string(kind) + ": " + msg);
}`,
	},
	{
		name:     "dynamic",
		includes: []string{"<cstdint>", "<string>", "<variant>"},
		code:     `using py_dynamic = std::variant<int64_t, double, bool, std::string>;`,
	},
	{
		name: "truediv",
		deps: []string{"error"},
		code: `inline double py_truediv(double a, double b) {
    if (b == 0) py_raise("ZeroDivisionError", "division by zero");
    return a / b;
}`,
	},
	{
		name:     "floordiv",
		includes: []string{"<cmath>", "<cstdint>"},
		deps:     []string{"error"},
		code: `inline int64_t py_floordiv(int64_t a, int64_t b) {
    if (b == 0) py_raise("ZeroDivisionError", "integer division or modulo by zero");
    if (b == -1) return -a;
    int64_t q = a / b;
    if (a % b != 0 && ((a < 0) != (b < 0))) --q;
    return q;
}

inline double py_floordiv(double a, double b) {
    if (b == 0) py_raise("ZeroDivisionError", "float floor division by zero");
    return std::floor(a / b);
}`,
	},
	{
		name:     "mod",
		includes: []string{"<cmath>", "<cstdint>"},
		deps:     []string{"error"},
		code: `inline int64_t py_mod(int64_t a, int64_t b) {
    if (b == 0) py_raise("ZeroDivisionError", "integer division or modulo by zero");
    if (b == -1) return 0;
    int64_t m = a % b;
    if (m != 0 && ((m < 0) != (b < 0))) m += b;
    return m;
}

inline double py_mod(double a, double b) {
    if (b == 0) py_raise("ZeroDivisionError", "float modulo");
    double m = std::fmod(a, b);
    if (m != 0 && ((m < 0) != (b < 0))) m += b;
    return m;
}`,
	},
	{
		name:     "ipow",
		includes: []string{"<cstdint>"},
		deps:     []string{"error"},
		code: `inline int64_t py_ipow(int64_t base, int64_t exp) {
    if (exp < 0) py_raise("ValueError", "negative exponent for an integer power");
    int64_t result = 1;
    while (exp > 0) {
        if (exp & 1) result *= base;
        exp >>= 1;
        if (exp > 0) base *= base;
    }
    return result;
}`,
	},
	{
		name:     "str_repeat",
		includes: []string{"<cstdint>", "<string>"},
		code: `inline std::string py_str_repeat(const std::string& s, int64_t n) {
    std::string out;
    for (int64_t i = 0; i < n; ++i) out += s;
    return out;
}`,
	},
	{
		name:     "concat",
		includes: []string{"<vector>"},
		code: `template <typename T>
std::vector<T> py_concat(const std::vector<T>& a, const std::vector<T>& b) {
    std::vector<T> out(a);
    out.insert(out.end(), b.begin(), b.end());
    return out;
}`,
	},
	{
		name:     "len",
		includes: []string{"<cstdint>"},
		code: `template <typename C>
int64_t py_len(const C& c) {
    return static_cast<int64_t>(c.size());
}`,
	},
	{
		name:     "index",
		includes: []string{"<cstdint>", "<map>", "<string>", "<vector>"},
		deps:     []string{"error"},
		code: `inline int64_t py_normalize_index(int64_t i, size_t size, const char* what) {
    int64_t n = static_cast<int64_t>(size);
    if (i < 0) i += n;
    if (i < 0 || i >= n) py_raise("IndexError", std::string(what) + " index out of range");
    return i;
}

template <typename T>
T py_index(const std::vector<T>& v, int64_t i) {
    return v[static_cast<size_t>(py_normalize_index(i, v.size(), "list"))];
}

template <typename T>
typename std::vector<T>::reference py_index_ref(std::vector<T>& v, int64_t i) {
    return v[static_cast<size_t>(py_normalize_index(i, v.size(), "list assignment"))];
}

template <typename K, typename V>
V py_index(const std::map<K, V>& m, const typename std::map<K, V>::key_type& k) {
    auto it = m.find(k);
    if (it == m.end()) py_raise("KeyError", "key not found");
    return it->second;
}

inline std::string py_index(const std::string& s, int64_t i) {
    return std::string(1, s[static_cast<size_t>(py_normalize_index(i, s.size(), "string"))]);
}`,
	},
	{
		name:     "contains",
		includes: []string{"<algorithm>", "<map>", "<set>", "<string>", "<vector>"},
		code: `template <typename T>
bool py_contains(const std::vector<T>& v, const typename std::vector<T>::value_type& x) {
    return std::find(v.begin(), v.end(), x) != v.end();
}

template <typename T>
bool py_contains(const std::set<T>& s, const typename std::set<T>::value_type& x) {
    return s.count(x) > 0;
}

template <typename K, typename V>
bool py_contains(const std::map<K, V>& m, const typename std::map<K, V>::key_type& k) {
    return m.count(k) > 0;
}

inline bool py_contains(const std::string& s, const std::string& sub) {
    return s.find(sub) != std::string::npos;
}`,
	},
	{
		name:     "keys",
		includes: []string{"<map>", "<set>", "<vector>"},
		code: `template <typename K, typename V>
std::vector<K> py_keys(const std::map<K, V>& m) {
    std::vector<K> out;
    out.reserve(m.size());
    for (const auto& kv : m) out.push_back(kv.first);
    return out;
}

template <typename T>
std::vector<T> py_keys(const std::set<T>& s) {
    return std::vector<T>(s.begin(), s.end());
}`,
	},
	{
		name:     "convert",
		includes: []string{"<map>", "<set>", "<string>", "<vector>"},
		deps:     []string{"keys"},
		code: `template <typename C>
std::vector<typename C::value_type> py_to_list(const C& c) {
    return std::vector<typename C::value_type>(c.begin(), c.end());
}

template <typename K, typename V>
std::vector<K> py_to_list(const std::map<K, V>& m) {
    return py_keys(m);
}

inline std::vector<std::string> py_to_list(const std::string& s) {
    std::vector<std::string> out;
    for (char c : s) out.push_back(std::string(1, c));
    return out;
}

template <typename C>
std::set<typename C::value_type> py_to_set(const C& c) {
    return std::set<typename C::value_type>(c.begin(), c.end());
}

template <typename K, typename V>
std::set<K> py_to_set(const std::map<K, V>& m) {
    std::set<K> out;
    for (const auto& kv : m) out.insert(kv.first);
    return out;
}

inline std::set<std::string> py_to_set(const std::string& s) {
    std::set<std::string> out;
    for (char c : s) out.insert(std::string(1, c));
    return out;
}`,
	},
	{
		name:     "minmax",
		includes: []string{"<algorithm>", "<map>", "<set>", "<string>", "<vector>"},
		deps:     []string{"error"},
		code: `template <typename T>
T py_min(const std::vector<T>& v) {
    if (v.empty()) py_raise("ValueError", "min() arg is an empty sequence");
    return *std::min_element(v.begin(), v.end());
}

template <typename T>
T py_max(const std::vector<T>& v) {
    if (v.empty()) py_raise("ValueError", "max() arg is an empty sequence");
    return *std::max_element(v.begin(), v.end());
}

template <typename T>
T py_min(const std::set<T>& s) {
    if (s.empty()) py_raise("ValueError", "min() arg is an empty sequence");
    return *s.begin();
}

template <typename T>
T py_max(const std::set<T>& s) {
    if (s.empty()) py_raise("ValueError", "max() arg is an empty sequence");
    return *s.rbegin();
}

template <typename K, typename V>
K py_min(const std::map<K, V>& m) {
    if (m.empty()) py_raise("ValueError", "min() arg is an empty sequence");
    return m.begin()->first;
}

template <typename K, typename V>
K py_max(const std::map<K, V>& m) {
    if (m.empty()) py_raise("ValueError", "max() arg is an empty sequence");
    return m.rbegin()->first;
}

inline std::string py_min(const std::string& s) {
    if (s.empty()) py_raise("ValueError", "min() arg is an empty sequence");
    return std::string(1, *std::min_element(s.begin(), s.end()));
}

inline std::string py_max(const std::string& s) {
    if (s.empty()) py_raise("ValueError", "max() arg is an empty sequence");
    return std::string(1, *std::max_element(s.begin(), s.end()));
}`,
	},
	{
		name:     "parse",
		includes: []string{"<cctype>", "<cstdint>", "<exception>", "<string>"},
		deps:     []string{"error"},
		code: `inline void py_check_parsed(const std::string& s, size_t pos, const char* what) {
    while (pos < s.size() && std::isspace(static_cast<unsigned char>(s[pos]))) ++pos;
    if (pos != s.size()) py_raise("ValueError", std::string("invalid literal for ") + what + ": '" + s + "'");
}

inline int64_t py_int_from_str(const std::string& s) {
    size_t pos = 0;
    int64_t v = 0;
    try {
        v = std::stoll(s, &pos);
    } catch (const std::exception&) {
        py_raise("ValueError", "invalid literal for int(): '" + s + "'");
    }
    py_check_parsed(s, pos, "int()");
    return v;
}

inline double py_float_from_str(const std::string& s) {
    size_t pos = 0;
    double v = 0;
    try {
        v = std::stod(s, &pos);
    } catch (const std::exception&) {
        py_raise("ValueError", "could not convert string to float: '" + s + "'");
    }
    py_check_parsed(s, pos, "float()");
    return v;
}`,
	},
	{
		name:     "range",
		includes: []string{"<cstdint>"},
		deps:     []string{"error"},
		code: `inline bool py_range_continues(int64_t i, int64_t stop, int64_t step) {
    if (step == 0) py_raise("ValueError", "range() arg 3 must not be zero");
    return step > 0 ? i < stop : i > stop;
}`,
	},
	{
		name:     "truthy",
		includes: []string{"<cstdint>", "<string>"},
		code: `inline bool py_truthy(int64_t v) { return v != 0; }
inline bool py_truthy(double v) { return v != 0; }
inline bool py_truthy(bool v) { return v; }
inline bool py_truthy(const std::string& v) { return !v.empty(); }

template <typename C>
bool py_truthy(const C& c) {
    return !c.empty();
}`,
	},
	{
		name: "truthy_dynamic",
		deps: []string{"truthy", "dynamic"},
		when: []string{"truthy", "dynamic"},
		code: `inline bool py_truthy(const py_dynamic& v) {
    return std::visit([](const auto& x) { return py_truthy(x); }, v);
}`,
	},
	{
		name:     "dynamic_ops",
		includes: []string{"<cmath>"},
		deps:     []string{"dynamic", "error", "truediv", "floordiv", "mod", "ipow", "str_repeat", "parse"},
		code: `inline bool py_dyn_is_int(const py_dynamic& v) {
    return std::holds_alternative<int64_t>(v) || std::holds_alternative<bool>(v);
}

inline int64_t py_dyn_as_int(const py_dynamic& v) {
    if (auto i = std::get_if<int64_t>(&v)) return *i;
    if (auto b = std::get_if<bool>(&v)) return *b ? 1 : 0;
    py_raise("TypeError", "expected an integer");
}

inline double py_dyn_as_double(const py_dynamic& v) {
    if (auto d = std::get_if<double>(&v)) return *d;
    if (std::holds_alternative<std::string>(v)) py_raise("TypeError", "expected a number");
    return static_cast<double>(py_dyn_as_int(v));
}

inline py_dynamic py_dyn_arith(char op, const py_dynamic& a, const py_dynamic& b) {
    if (auto sa = std::get_if<std::string>(&a)) {
        auto sb = std::get_if<std::string>(&b);
        if (op == '+' && sb) return *sa + *sb;
        if (op == '*' && py_dyn_is_int(b)) return py_str_repeat(*sa, py_dyn_as_int(b));
        py_raise("TypeError", "unsupported operand types for a string");
    }
    if (std::holds_alternative<std::string>(b)) py_raise("TypeError", "unsupported operand type");
    if (op == '/') return py_truediv(py_dyn_as_double(a), py_dyn_as_double(b));
    if (py_dyn_is_int(a) && py_dyn_is_int(b)) {
        int64_t x = py_dyn_as_int(a), y = py_dyn_as_int(b);
        switch (op) {
        case '+': return x + y;
        case '-': return x - y;
        case '*': return x * y;
        case 'f': return py_floordiv(x, y);
        case '%': return py_mod(x, y);
        case 'p':
            if (y < 0) return std::pow(static_cast<double>(x), static_cast<double>(y));
            return py_ipow(x, y);
        }
    }
    double x = py_dyn_as_double(a), y = py_dyn_as_double(b);
    switch (op) {
    case '+': return x + y;
    case '-': return x - y;
    case '*': return x * y;
    case 'f': return py_floordiv(x, y);
    case '%': return py_mod(x, y);
    case 'p': return std::pow(x, y);
    }
    py_raise("TypeError", "unsupported operator");
}

inline bool py_dyn_compare(char op, const py_dynamic& a, const py_dynamic& b) {
    int c = 0;
    auto sa = std::get_if<std::string>(&a);
    auto sb = std::get_if<std::string>(&b);
    if (sa || sb) {
        if (!sa || !sb) {
            if (op == '=') return false;
            if (op == '!') return true;
            py_raise("TypeError", "cannot order a string and a number");
        }
        c = sa->compare(*sb);
    } else if (py_dyn_is_int(a) && py_dyn_is_int(b)) {
        int64_t x = py_dyn_as_int(a), y = py_dyn_as_int(b);
        c = x < y ? -1 : (x > y ? 1 : 0);
    } else {
        double x = py_dyn_as_double(a), y = py_dyn_as_double(b);
        c = x < y ? -1 : (x > y ? 1 : 0);
    }
    switch (op) {
    case '=': return c == 0;
    case '!': return c != 0;
    case '<': return c < 0;
    case 'l': return c <= 0;
    case '>': return c > 0;
    case 'g': return c >= 0;
    }
    py_raise("TypeError", "unsupported comparison");
}

inline int64_t py_dyn_int(const py_dynamic& v) {
    if (auto d = std::get_if<double>(&v)) return static_cast<int64_t>(*d);
    if (auto s = std::get_if<std::string>(&v)) return py_int_from_str(*s);
    return py_dyn_as_int(v);
}

inline double py_dyn_float(const py_dynamic& v) {
    if (auto s = std::get_if<std::string>(&v)) return py_float_from_str(*s);
    return py_dyn_as_double(v);
}`,
	},
	{
		name:     "repr",
		includes: []string{"<cmath>", "<cstdint>", "<cstdio>", "<cstdlib>", "<string>"},
		code: `inline std::string py_repr(int64_t v) { return std::to_string(v); }
inline std::string py_repr(bool v) { return v ? "True" : "False"; }

inline std::string py_repr(double v) {
    if (std::isnan(v)) return "nan";
    if (std::isinf(v)) return v > 0 ? "inf" : "-inf";
    char buf[32];
    for (int precision = 1; precision <= 17; ++precision) {
        std::snprintf(buf, sizeof buf, "%.*g", precision, v);
        if (std::strtod(buf, nullptr) == v) break;
    }
    std::string s(buf);
    if (s.find_first_of(".e") == std::string::npos) s += ".0";
    return s;
}

inline std::string py_repr(const std::string& v) {
    std::string out = "'";
    for (char c : v) {
        if (c == '\'' || c == '\\') out += '\\';
        out += c;
    }
    return out + "'";
}`,
	},
	{
		name: "repr_dynamic",
		deps: []string{"repr", "dynamic"},
		when: []string{"repr", "dynamic"},
		code: `inline std::string py_repr(const py_dynamic& v) {
    return std::visit([](const auto& x) { return py_repr(x); }, v);
}`,
	},
	{
		name: "repr_items",
		deps: []string{"repr"},
		code: `template <typename It>
std::string py_repr_items(It begin, It end) {
    std::string out;
    for (It it = begin; it != end; ++it) {
        if (it != begin) out += ", ";
        out += py_repr(*it);
    }
    return out;
}`,
	},
	{
		name:     "repr_list",
		includes: []string{"<vector>"},
		deps:     []string{"repr_items"},
		decl:     `template <typename T> std::string py_repr(const std::vector<T>& v);`,
		code: `template <typename T>
std::string py_repr(const std::vector<T>& v) {
    return "[" + py_repr_items(v.begin(), v.end()) + "]";
}`,
	},
	{
		name:     "repr_set",
		includes: []string{"<set>"},
		deps:     []string{"repr_items"},
		decl:     `template <typename T> std::string py_repr(const std::set<T>& v);`,
		code: `template <typename T>
std::string py_repr(const std::set<T>& v) {
    if (v.empty()) return "set()";
    return "{" + py_repr_items(v.begin(), v.end()) + "}";
}`,
	},
	{
		name:     "repr_map",
		includes: []string{"<map>"},
		deps:     []string{"repr"},
		decl:     `template <typename K, typename V> std::string py_repr(const std::map<K, V>& m);`,
		code: `template <typename K, typename V>
std::string py_repr(const std::map<K, V>& m) {
    std::string out = "{";
    for (auto it = m.begin(); it != m.end(); ++it) {
        if (it != m.begin()) out += ", ";
        out += py_repr(it->first) + ": " + py_repr(it->second);
    }
    return out + "}";
}`,
	},
	{
		name:     "repr_tuple",
		includes: []string{"<tuple>"},
		deps:     []string{"repr"},
		decl:     `template <typename... Ts> std::string py_repr(const std::tuple<Ts...>& t);`,
		code: `template <typename... Ts>
std::string py_repr(const std::tuple<Ts...>& t) {
    std::string out;
    std::apply([&out](const auto&... xs) { ((out += (out.empty() ? "" : ", ") + py_repr(xs)), ...); }, t);
    if (sizeof...(Ts) == 1) out += ",";
    return "(" + out + ")";
}`,
	},
	{
		name: "str",
		deps: []string{"repr"},
		code: `inline std::string py_str(const std::string& v) { return v; }

template <typename T>
std::string py_str(const T& v) {
    return py_repr(v);
}`,
	},
	{
		name: "str_dynamic",
		deps: []string{"str", "dynamic"},
		when: []string{"str", "dynamic"},
		code: `inline std::string py_str(const py_dynamic& v) {
    if (auto s = std::get_if<std::string>(&v)) return *s;
    return py_repr(v);
}`,
	},
	{
		name:     "print",
		includes: []string{"<iostream>"},
		deps:     []string{"str"},
		code: `inline void py_print() { std::cout << '\n'; }

template <typename T, typename... Rest>
void py_print(const T& first, const Rest&... rest) {
    std::cout << py_str(first);
    ((std::cout << ' ' << py_str(rest)), ...);
    std::cout << '\n';
}`,
	},
}

var helperIndex = func() map[string]int {
	m := make(map[string]int, len(helpers))
	for i, h := range helpers {
		m[h.name] = i
	}
	return m
}()
